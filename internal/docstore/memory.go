package docstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type likeKey struct {
	video primitive.ObjectID
	user  primitive.ObjectID
}

// MemoryStore 記憶體版 Store
//
// 語意與 MongoStore 相同（版本檢查、唯一索引、內嵌列表原子更新），
// 每次讀寫都複製文件，呼叫者拿到的永遠是快照。
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[primitive.ObjectID]*User
	videos    map[primitive.ObjectID]*Video
	comments  map[primitive.ObjectID]*Comment
	likes     map[likeKey]Like
	tempClips map[primitive.ObjectID]*TempClip
}

// NewMemoryStore 建立空的 MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[primitive.ObjectID]*User),
		videos:    make(map[primitive.ObjectID]*Video),
		comments:  make(map[primitive.ObjectID]*Comment),
		likes:     make(map[likeKey]Like),
		tempClips: make(map[primitive.ObjectID]*TempClip),
	}
}

func cloneVideo(v *Video) *Video {
	cp := *v
	cp.Clips = slices.Clone(v.Clips)
	cp.Tags = slices.Clone(v.Tags)
	cp.TopComments = slices.Clone(v.TopComments)
	if cp.TopComments == nil {
		cp.TopComments = []Comment{}
	}
	return &cp
}

// 使用者

func (s *MemoryStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, id primitive.ObjectID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindUserByUsernameOrEmail(_ context.Context, usernameOrEmail string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == usernameOrEmail || u.Email == usernameOrEmail {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// 暫存影片

func (s *MemoryStore) CreateTempClip(_ context.Context, c *TempClip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.State == "" {
		c.State = ClipInitial
	}
	cp := *c
	s.tempClips[c.ID] = &cp
	return nil
}

func (s *MemoryStore) FindTempClip(_ context.Context, id primitive.ObjectID) (*TempClip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.tempClips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) SaveTempClip(_ context.Context, c *TempClip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tempClips[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}
	c.UpdatedAt = time.Now().UTC()
	c.Version++
	stored.State = c.State
	stored.VideoID = c.VideoID
	stored.UpdatedAt = c.UpdatedAt
	stored.Version = c.Version
	return nil
}

// 影片

func (s *MemoryStore) CreateVideo(_ context.Context, v *Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	if _, exists := s.videos[v.ID]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	if v.TopComments == nil {
		v.TopComments = []Comment{}
	}
	s.videos[v.ID] = cloneVideo(v)
	return nil
}

func (s *MemoryStore) FindVideoByID(_ context.Context, id primitive.ObjectID) (*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneVideo(v), nil
}

func (s *MemoryStore) FindVideosByIDs(_ context.Context, ids []primitive.ObjectID) ([]*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.videos[id]; ok {
			out = append(out, cloneVideo(v))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindVideosByOwner(_ context.Context, owner primitive.ObjectID, page, pageSize int) ([]*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Video
	for _, v := range s.videos {
		if v.Owner == owner {
			all = append(all, v)
		}
	}
	slices.SortFunc(all, func(a, b *Video) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareID(b.ID, a.ID)
	})

	out := []*Video{}
	start := (page - 1) * pageSize
	for i := start; i >= 0 && i < len(all) && i < start+pageSize; i++ {
		out = append(out, cloneVideo(all[i]))
	}
	return out, nil
}

func (s *MemoryStore) SaveVideo(_ context.Context, v *Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.videos[v.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != v.Version {
		return ErrVersionConflict
	}
	v.UpdatedAt = time.Now().UTC()
	v.Version++

	stored.Title = v.Title
	stored.Comments = v.Comments
	stored.Clips = slices.Clone(v.Clips)
	stored.Tags = slices.Clone(v.Tags)
	stored.Available = v.Available
	stored.IsPublic = v.IsPublic
	stored.Duration = v.Duration
	stored.UpdatedAt = v.UpdatedAt
	stored.Version = v.Version
	return nil
}

func (s *MemoryStore) SetVideoStat(_ context.Context, id primitive.ObjectID, stat Stat, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[id]
	if !ok {
		return ErrNotFound
	}
	switch stat {
	case StatLikes:
		v.Likes = value
	case StatViews:
		v.Views = value
	}
	return nil
}

// 內嵌留言

func (s *MemoryStore) PushTopComment(_ context.Context, videoID primitive.ObjectID, c Comment, limit int) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	out := evicted(v.TopComments, limit)
	next := append([]Comment{c}, v.TopComments...)
	if len(next) > limit {
		next = next[:limit]
	}
	v.TopComments = next
	return out, nil
}

func (s *MemoryStore) PullTopComment(_ context.Context, videoID, commentID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok {
		return false, ErrNotFound
	}
	before := len(v.TopComments)
	v.TopComments = slices.DeleteFunc(v.TopComments, func(c Comment) bool { return c.ID == commentID })
	return len(v.TopComments) < before, nil
}

func (s *MemoryStore) PromoteNewestComment(_ context.Context, videoID primitive.ObjectID, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok || len(v.TopComments) >= limit {
		return false, nil
	}
	newest := s.overflowLocked(videoID, primitive.NilObjectID, 1)
	if len(newest) == 0 {
		return false, nil
	}
	c := newest[0]
	v.TopComments = append(v.TopComments, c)
	slices.SortFunc(v.TopComments, func(a, b Comment) int { return compareID(b.ID, a.ID) })
	delete(s.comments, c.ID)
	return true, nil
}

func (s *MemoryStore) UpdateTopComment(_ context.Context, videoID primitive.ObjectID, c Comment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok {
		return false, nil
	}
	for i := range v.TopComments {
		if v.TopComments[i].ID == c.ID {
			v.TopComments[i].Content = c.Content
			v.TopComments[i].Edit = c.Edit
			v.TopComments[i].UpdatedAt = c.UpdatedAt
			return true, nil
		}
	}
	return false, nil
}

// 溢出留言

func (s *MemoryStore) InsertComment(_ context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.comments[c.ID]; exists {
		return ErrDuplicate
	}
	cp := *c
	s.comments[c.ID] = &cp
	return nil
}

func (s *MemoryStore) FindComment(_ context.Context, id primitive.ObjectID) (*Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) SaveComment(_ context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.comments[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	stored.Content = c.Content
	stored.Edit = c.Edit
	stored.Likes = c.Likes
	stored.UpdatedAt = c.UpdatedAt
	stored.Version = c.Version
	return nil
}

func (s *MemoryStore) DeleteComment(_ context.Context, videoID, commentID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok || c.VideoID != videoID {
		return false, nil
	}
	delete(s.comments, commentID)
	return true, nil
}

func (s *MemoryStore) ListOverflowComments(_ context.Context, videoID, before primitive.ObjectID, limit int) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overflowLocked(videoID, before, limit), nil
}

func (s *MemoryStore) overflowLocked(videoID, before primitive.ObjectID, limit int) []Comment {
	out := []Comment{}
	for _, c := range s.comments {
		if c.VideoID != videoID {
			continue
		}
		if !before.IsZero() && compareID(c.ID, before) >= 0 {
			continue
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Comment) int { return compareID(b.ID, a.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// 按讚

func (s *MemoryStore) CreateLike(_ context.Context, videoID, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := likeKey{video: videoID, user: userID}
	if _, exists := s.likes[k]; exists {
		return ErrDuplicate
	}
	s.likes[k] = Like{
		ID:        primitive.NewObjectID(),
		VideoID:   videoID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) RemoveLike(_ context.Context, videoID, userID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := likeKey{video: videoID, user: userID}
	if _, exists := s.likes[k]; !exists {
		return false, nil
	}
	delete(s.likes, k)
	return true, nil
}

func (s *MemoryStore) HasLike(_ context.Context, videoID, userID primitive.ObjectID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.likes[likeKey{video: videoID, user: userID}]
	return exists, nil
}

func (s *MemoryStore) CountLikes(_ context.Context, videoID primitive.ObjectID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for k := range s.likes {
		if k.video == videoID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

// compareID 依 ObjectID 位元組排序（與 MongoDB 的 _id 比較一致）
func compareID(a, b primitive.ObjectID) int {
	return slices.Compare(a[:], b[:])
}

var _ Store = (*MemoryStore)(nil)
