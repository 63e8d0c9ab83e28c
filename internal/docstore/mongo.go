package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// 集合名稱
const (
	CollUsers     = "users"
	CollVideos    = "videos"
	CollComments  = "comments"
	CollLikes     = "likes"
	CollTempClips = "tempclips"
)

// MongoOptions MongoDB 連線參數
type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// MongoStore 以 MongoDB 實作 Store
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// ConnectMongo 建立連線並確認可用
func ConnectMongo(ctx context.Context, opts MongoOptions, logger *slog.Logger) (*MongoStore, error) {
	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("connected to mongo", "database", opts.Database)
	return NewMongoStore(client, opts.Database, logger), nil
}

// NewMongoStore 以既有客戶端建立 MongoStore
func NewMongoStore(client *mongo.Client, database string, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// mapErr 把驅動錯誤轉成套件哨兵錯誤
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func (s *MongoStore) findOne(ctx context.Context, coll string, filter any, out any) error {
	return mapErr(s.coll(coll).FindOne(ctx, filter).Decode(out))
}

// versionMiss 判斷版本寫入未命中的原因：文件不存在，或版本已被他人推進
func (s *MongoStore) versionMiss(ctx context.Context, coll string, id primitive.ObjectID) error {
	n, err := s.coll(coll).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// ============================================================================
// 使用者
// ============================================================================

func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.coll(CollUsers).InsertOne(ctx, u)
	return mapErr(err)
}

func (s *MongoStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	var u User
	if err := s.findOne(ctx, CollUsers, bson.M{"_id": id}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) FindUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error) {
	var u User
	filter := bson.M{"$or": bson.A{
		bson.M{"username": usernameOrEmail},
		bson.M{"email": usernameOrEmail},
	}}
	if err := s.findOne(ctx, CollUsers, filter, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ============================================================================
// 暫存影片
// ============================================================================

func (s *MongoStore) CreateTempClip(ctx context.Context, c *TempClip) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.State == "" {
		c.State = ClipInitial
	}
	_, err := s.coll(CollTempClips).InsertOne(ctx, c)
	return mapErr(err)
}

func (s *MongoStore) FindTempClip(ctx context.Context, id primitive.ObjectID) (*TempClip, error) {
	var c TempClip
	if err := s.findOne(ctx, CollTempClips, bson.M{"_id": id}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) SaveTempClip(ctx context.Context, c *TempClip) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.coll(CollTempClips).UpdateOne(ctx,
		bson.M{"_id": c.ID, "__v": c.Version},
		bson.M{
			"$set": bson.M{
				"state":             c.State,
				"videoId":           c.VideoID,
				"updated_timestamp": c.UpdatedAt,
			},
			"$inc": bson.M{"__v": 1},
		})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return s.versionMiss(ctx, CollTempClips, c.ID)
	}
	c.Version++
	return nil
}

// ============================================================================
// 影片
// ============================================================================

func (s *MongoStore) CreateVideo(ctx context.Context, v *Video) error {
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	if v.TopComments == nil {
		v.TopComments = []Comment{}
	}
	_, err := s.coll(CollVideos).InsertOne(ctx, v)
	return mapErr(err)
}

func (s *MongoStore) FindVideoByID(ctx context.Context, id primitive.ObjectID) (*Video, error) {
	var v Video
	if err := s.findOne(ctx, CollVideos, bson.M{"_id": id}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVideosByIDs 結果依傳入順序排列，找不到的略過
func (s *MongoStore) FindVideosByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.coll(CollVideos).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var found []*Video
	if err := cur.All(ctx, &found); err != nil {
		return nil, err
	}
	return orderVideos(ids, found), nil
}

func (s *MongoStore) FindVideosByOwner(ctx context.Context, owner primitive.ObjectID, page, pageSize int) ([]*Video, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cur, err := s.coll(CollVideos).Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	out := []*Video{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func orderVideos(ids []primitive.ObjectID, found []*Video) []*Video {
	byID := make(map[primitive.ObjectID]*Video, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}
	out := make([]*Video, 0, len(found))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (s *MongoStore) SaveVideo(ctx context.Context, v *Video) error {
	v.UpdatedAt = time.Now().UTC()
	res, err := s.coll(CollVideos).UpdateOne(ctx,
		bson.M{"_id": v.ID, "__v": v.Version},
		bson.M{
			"$set": bson.M{
				"title":             v.Title,
				"comments":          v.Comments,
				"clips":             v.Clips,
				"tags":              v.Tags,
				"available":         v.Available,
				"isPublic":          v.IsPublic,
				"duration":          v.Duration,
				"updated_timestamp": v.UpdatedAt,
			},
			"$inc": bson.M{"__v": 1},
		})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return s.versionMiss(ctx, CollVideos, v.ID)
	}
	v.Version++
	return nil
}

func (s *MongoStore) SetVideoStat(ctx context.Context, id primitive.ObjectID, stat Stat, value int64) error {
	res, err := s.coll(CollVideos).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{string(stat): value}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// 內嵌留言
// ============================================================================

// topCommentsOrder 內嵌列表的排序：新到舊
var topCommentsOrder = bson.D{{Key: "_id", Value: -1}}

func (s *MongoStore) PushTopComment(ctx context.Context, videoID primitive.ObjectID, c Comment, limit int) ([]Comment, error) {
	// 取回更新前的列表，被 $slice 截掉的就是尾端那幾筆
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"top_comments": 1})

	var before Video
	err := s.coll(CollVideos).FindOneAndUpdate(ctx,
		bson.M{"_id": videoID},
		bson.M{"$push": bson.M{"top_comments": bson.M{
			"$each":     bson.A{c},
			"$position": 0,
			"$slice":    limit,
		}}},
		opts,
	).Decode(&before)
	if err != nil {
		return nil, mapErr(err)
	}
	return evicted(before.TopComments, limit), nil
}

// evicted 在 prev 前面插入一筆並截斷為 limit 後，被擠出的元素
func evicted(prev []Comment, limit int) []Comment {
	if len(prev) < limit {
		return nil
	}
	out := make([]Comment, len(prev)-(limit-1))
	copy(out, prev[limit-1:])
	return out
}

func (s *MongoStore) PullTopComment(ctx context.Context, videoID, commentID primitive.ObjectID) (bool, error) {
	res, err := s.coll(CollVideos).UpdateOne(ctx,
		bson.M{"_id": videoID, "top_comments._id": commentID},
		bson.M{"$pull": bson.M{"top_comments": bson.M{"_id": commentID}}})
	if err != nil {
		return false, mapErr(err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	if _, err := s.FindVideoByID(ctx, videoID); err != nil {
		return false, err
	}
	return false, nil
}

// PromoteNewestComment 先從溢出區刪除再推入列表
//
// 同一筆留言任何時刻只存在一處；刪除成功的一方才能推入。
func (s *MongoStore) PromoteNewestComment(ctx context.Context, videoID primitive.ObjectID, limit int) (bool, error) {
	newest, err := s.ListOverflowComments(ctx, videoID, primitive.NilObjectID, 1)
	if err != nil || len(newest) == 0 {
		return false, err
	}
	c := newest[0]

	claimed, err := s.DeleteComment(ctx, videoID, c.ID)
	if err != nil || !claimed {
		return false, err
	}

	// 條件式推入：列表未滿且不含此留言
	filter := bson.M{
		"_id":              videoID,
		"top_comments._id": bson.M{"$ne": c.ID},
	}
	filter[fmt.Sprintf("top_comments.%d", limit-1)] = bson.M{"$exists": false}

	res, err := s.coll(CollVideos).UpdateOne(ctx, filter,
		bson.M{"$push": bson.M{"top_comments": bson.M{
			"$each": bson.A{c},
			"$sort": topCommentsOrder,
		}}})
	if err == nil && res.ModifiedCount > 0 {
		return true, nil
	}

	// 列表已被併發的新增補滿，或推入失敗：放回溢出區
	if insErr := s.InsertComment(ctx, &c); insErr != nil && !errors.Is(insErr, ErrDuplicate) {
		s.logger.Error("promoted comment lost",
			"video_id", videoID.Hex(),
			"comment_id", c.ID.Hex(),
			"error", insErr)
		return false, errors.Join(mapErr(err), insErr)
	}
	return false, mapErr(err)
}

func (s *MongoStore) UpdateTopComment(ctx context.Context, videoID primitive.ObjectID, c Comment) (bool, error) {
	res, err := s.coll(CollVideos).UpdateOne(ctx,
		bson.M{"_id": videoID, "top_comments._id": c.ID},
		bson.M{"$set": bson.M{
			"top_comments.$.content":           c.Content,
			"top_comments.$.edit":              c.Edit,
			"top_comments.$.updated_timestamp": c.UpdatedAt,
		}})
	if err != nil {
		return false, mapErr(err)
	}
	return res.MatchedCount > 0, nil
}

// ============================================================================
// 溢出留言
// ============================================================================

func (s *MongoStore) InsertComment(ctx context.Context, c *Comment) error {
	_, err := s.coll(CollComments).InsertOne(ctx, c)
	return mapErr(err)
}

func (s *MongoStore) FindComment(ctx context.Context, id primitive.ObjectID) (*Comment, error) {
	var c Comment
	if err := s.findOne(ctx, CollComments, bson.M{"_id": id}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) SaveComment(ctx context.Context, c *Comment) error {
	res, err := s.coll(CollComments).UpdateOne(ctx,
		bson.M{"_id": c.ID, "__v": c.Version},
		bson.M{
			"$set": bson.M{
				"content":           c.Content,
				"edit":              c.Edit,
				"likes":             c.Likes,
				"updated_timestamp": c.UpdatedAt,
			},
			"$inc": bson.M{"__v": 1},
		})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return s.versionMiss(ctx, CollComments, c.ID)
	}
	c.Version++
	return nil
}

func (s *MongoStore) DeleteComment(ctx context.Context, videoID, commentID primitive.ObjectID) (bool, error) {
	res, err := s.coll(CollComments).DeleteOne(ctx, bson.M{"_id": commentID, "videoId": videoID})
	if err != nil {
		return false, mapErr(err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) ListOverflowComments(ctx context.Context, videoID, before primitive.ObjectID, limit int) ([]Comment, error) {
	filter := bson.M{"videoId": videoID}
	if !before.IsZero() {
		filter["_id"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(topCommentsOrder)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll(CollComments).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []Comment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// 按讚
// ============================================================================

// CreateLike 重複按讚由唯一索引 (videoId, userId) 擋下，返回 ErrDuplicate
func (s *MongoStore) CreateLike(ctx context.Context, videoID, userID primitive.ObjectID) error {
	_, err := s.coll(CollLikes).InsertOne(ctx, Like{
		ID:        primitive.NewObjectID(),
		VideoID:   videoID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	return mapErr(err)
}

func (s *MongoStore) RemoveLike(ctx context.Context, videoID, userID primitive.ObjectID) (bool, error) {
	res, err := s.coll(CollLikes).DeleteOne(ctx, bson.M{"videoId": videoID, "userId": userID})
	if err != nil {
		return false, mapErr(err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) HasLike(ctx context.Context, videoID, userID primitive.ObjectID) (bool, error) {
	n, err := s.coll(CollLikes).CountDocuments(ctx,
		bson.M{"videoId": videoID, "userId": userID},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoStore) CountLikes(ctx context.Context, videoID primitive.ObjectID) (int64, error) {
	return s.coll(CollLikes).CountDocuments(ctx, bson.M{"videoId": videoID})
}

// ============================================================================
// 連線
// ============================================================================

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
