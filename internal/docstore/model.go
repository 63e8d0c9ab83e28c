package docstore

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tag 影片分類
type Tag string

const (
	TagFun       Tag = "FUN"
	TagEducation Tag = "EDUCATION"
	TagPolitic   Tag = "POLITIC"
)

// Valid 是否為已知分類
func (t Tag) Valid() bool {
	switch t {
	case TagFun, TagEducation, TagPolitic:
		return true
	}
	return false
}

// ClipState 暫存影片的轉檔狀態
type ClipState string

const (
	ClipInitial    ClipState = "Initial"
	ClipQueued     ClipState = "Queued"
	ClipProcessing ClipState = "Processing"
	ClipFinished   ClipState = "Finished"
	ClipFailed     ClipState = "Failed"
)

// User 使用者
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string             `bson:"username" json:"username"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password" json:"-"`
	Firstname string             `bson:"firstname,omitempty" json:"firstname,omitempty"`
	Lastname  string             `bson:"lastname,omitempty" json:"lastname,omitempty"`
	Avatar    string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	CreatedAt time.Time          `bson:"created_timestamp" json:"created_timestamp"`
}

// FullName 組合顯示名稱
//
//	"first last" / "first" / "last" / ""
func (u *User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// Comment 留言
//
// 同一則留言只會存在一個位置：影片內嵌的 top_comments，或 comments 集合（溢出區）。
type Comment struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Content   string             `bson:"content" json:"content"`
	Edit      bool               `bson:"edit" json:"edit"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	VideoID   primitive.ObjectID `bson:"videoId" json:"videoId"`
	Likes     int64              `bson:"likes" json:"likes"`
	CreatedAt time.Time          `bson:"created_timestamp" json:"created_timestamp"`
	UpdatedAt time.Time          `bson:"updated_timestamp" json:"updated_timestamp"`
	Version   int64              `bson:"__v" json:"-"`
}

// Video 影片
//
// Likes 與 Views 是快取計數的檢查點，只由回寫路徑更新；
// Comments 必須永遠等於 len(TopComments) + 溢出區筆數。
type Video struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Owner       primitive.ObjectID   `bson:"owner" json:"owner"`
	Title       string               `bson:"title" json:"title"`
	Views       int64                `bson:"views" json:"views"`
	Likes       int64                `bson:"likes" json:"likes"`
	Comments    int64                `bson:"comments" json:"comments"`
	Clips       []primitive.ObjectID `bson:"clips" json:"clips"`
	Tags        []Tag                `bson:"tags" json:"tags"`
	Available   bool                 `bson:"available" json:"available"`
	IsPublic    bool                 `bson:"isPublic" json:"isPublic"`
	Duration    float64              `bson:"duration" json:"duration"`
	TopComments []Comment            `bson:"top_comments" json:"top_comments"`
	CreatedAt   time.Time            `bson:"created_timestamp" json:"created_timestamp"`
	UpdatedAt   time.Time            `bson:"updated_timestamp" json:"updated_timestamp"`
	Version     int64                `bson:"__v" json:"-"`
}

// Listed 是否可出現在最近影片索引
func (v *Video) Listed() bool {
	return v.Available && v.IsPublic
}

// Like 按讚紀錄，(videoId, userId) 唯一
type Like struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VideoID   primitive.ObjectID `bson:"videoId" json:"videoId"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	CreatedAt time.Time          `bson:"created_timestamp" json:"created_timestamp"`
}

// TempClip 上傳後等待轉檔的原始檔
type TempClip struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Owner     primitive.ObjectID `bson:"owner" json:"owner"`
	Source    string             `bson:"source" json:"source"`
	State     ClipState          `bson:"state" json:"state"`
	VideoID   primitive.ObjectID `bson:"videoId,omitempty" json:"videoId,omitempty"`
	CreatedAt time.Time          `bson:"created_timestamp" json:"created_timestamp"`
	UpdatedAt time.Time          `bson:"updated_timestamp" json:"updated_timestamp"`
	Version   int64              `bson:"__v" json:"-"`
}
