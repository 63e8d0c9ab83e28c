package kv

import "fmt"

// 全域 key
const (
	RecentVideosList = "list:videos:recent"
	RecentVideosSet  = "set:videos:recent"
)

// VideoLikesKey 影片按讚計數
func VideoLikesKey(videoID string) string {
	return fmt.Sprintf("video:object:%s:likes", videoID)
}

// VideoViewsKey 影片觀看計數
func VideoViewsKey(videoID string) string {
	return fmt.Sprintf("video:object:%s:views", videoID)
}

// UserMarkerKey 使用者暖機標記，存在代表衍生欄位仍有效
func UserMarkerKey(userID string) string {
	return fmt.Sprintf("user:object:%s:user.id", userID)
}

func UserFullNameKey(userID string) string {
	return fmt.Sprintf("user:object:%s:user.full.name", userID)
}

func UserAvatarKey(userID string) string {
	return fmt.Sprintf("user:object:%s:user.avatar", userID)
}
