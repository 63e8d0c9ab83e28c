package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 主題
const (
	SubjectConversion = "video.conversion"
	SubjectDone       = "video.done"
)

// ConversionJob 送給轉檔 worker 的工作
type ConversionJob struct {
	ObjectID string `json:"object_id"` // 暫存影片 id
	Source   string `json:"source"`    // 原始檔路徑
	VideoID  string `json:"video_id"`  // 目標影片 id
}

// VideoDone 轉檔 worker 回報的完成事件
type VideoDone struct {
	VideoID string `json:"VideoId"`
	Success bool   `json:"Success"`
}

// ErrMalformed 無法解析的訊息，重送也不會成功
var ErrMalformed = errors.New("queue: malformed message")

// DecodeVideoDone 解析完成事件
func DecodeVideoDone(data []byte) (primitive.ObjectID, bool, error) {
	var msg VideoDone
	if err := json.Unmarshal(data, &msg); err != nil {
		return primitive.NilObjectID, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	id, err := primitive.ObjectIDFromHex(msg.VideoID)
	if err != nil {
		return primitive.NilObjectID, false, fmt.Errorf("%w: video id %q", ErrMalformed, msg.VideoID)
	}
	return id, msg.Success, nil
}
