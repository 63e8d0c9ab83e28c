// Package docstore 是權威資料來源（使用者、影片、留言、按讚）
//
// 兩種實作：
//
//	MongoStore   生產環境，MongoDB
//	MemoryStore  單元測試與本機開發
//
// 可變文件帶有 __v 版本欄位；寫入時版本不符返回 ErrVersionConflict，
// 不會靜默覆蓋。
package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound 文件不存在
	ErrNotFound = errors.New("docstore: not found")
	// ErrVersionConflict 樂觀鎖版本不符
	ErrVersionConflict = errors.New("docstore: version conflict")
	// ErrDuplicate 違反唯一索引
	ErrDuplicate = errors.New("docstore: duplicate key")
)

// Stat 可回寫的影片計數欄位
type Stat string

const (
	StatLikes Stat = "likes"
	StatViews Stat = "views"
)

// Store 權威資料來源
type Store interface {
	// 使用者
	CreateUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	FindUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error)

	// 暫存影片
	CreateTempClip(ctx context.Context, c *TempClip) error
	FindTempClip(ctx context.Context, id primitive.ObjectID) (*TempClip, error)
	SaveTempClip(ctx context.Context, c *TempClip) error

	// 影片
	CreateVideo(ctx context.Context, v *Video) error
	FindVideoByID(ctx context.Context, id primitive.ObjectID) (*Video, error)
	FindVideosByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Video, error)
	// FindVideosByOwner 依建立時間由新到舊分頁，page 從 1 開始
	FindVideosByOwner(ctx context.Context, owner primitive.ObjectID, page, pageSize int) ([]*Video, error)
	// SaveVideo 帶版本檢查寫回中繼資料與留言計數，成功後 v.Version 遞增；
	// 不觸碰 likes、views、top_comments。
	SaveVideo(ctx context.Context, v *Video) error
	// SetVideoStat 回寫快取計數（不檢查版本）
	SetVideoStat(ctx context.Context, id primitive.ObjectID, stat Stat, value int64) error

	// 內嵌留言（單一文件原子更新）
	//
	// PushTopComment 把留言插到最前面並截斷為 limit 筆，返回被擠出的留言。
	PushTopComment(ctx context.Context, videoID primitive.ObjectID, c Comment, limit int) ([]Comment, error)
	// PullTopComment 從內嵌列表移除；false 表示不在列表中
	PullTopComment(ctx context.Context, videoID, commentID primitive.ObjectID) (bool, error)
	// PromoteNewestComment 內嵌列表未滿時，把溢出區最新一筆搬回列表
	PromoteNewestComment(ctx context.Context, videoID primitive.ObjectID, limit int) (bool, error)
	UpdateTopComment(ctx context.Context, videoID primitive.ObjectID, c Comment) (bool, error)

	// 溢出留言
	InsertComment(ctx context.Context, c *Comment) error
	FindComment(ctx context.Context, id primitive.ObjectID) (*Comment, error)
	SaveComment(ctx context.Context, c *Comment) error
	DeleteComment(ctx context.Context, videoID, commentID primitive.ObjectID) (bool, error)
	// ListOverflowComments 依 _id 由新到舊；before 為零值時不設上界
	ListOverflowComments(ctx context.Context, videoID, before primitive.ObjectID, limit int) ([]Comment, error)

	// 按讚
	CreateLike(ctx context.Context, videoID, userID primitive.ObjectID) error
	RemoveLike(ctx context.Context, videoID, userID primitive.ObjectID) (bool, error)
	HasLike(ctx context.Context, videoID, userID primitive.ObjectID) (bool, error)
	CountLikes(ctx context.Context, videoID primitive.ObjectID) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
