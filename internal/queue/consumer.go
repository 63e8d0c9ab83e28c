package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/koopa0/video-engagement/internal/metrics"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DoneHandler 處理轉檔完成事件
type DoneHandler interface {
	VideoDone(ctx context.Context, videoID primitive.ObjectID, success bool) error
}

// DoneConsumer 消費 video.done
type DoneConsumer struct {
	mq      *MessageQueue
	handler DoneHandler
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration

	sub *nats.Subscription
}

// NewDoneConsumer 建立消費者
func NewDoneConsumer(mq *MessageQueue, handler DoneHandler, m *metrics.Metrics, logger *slog.Logger) *DoneConsumer {
	return &DoneConsumer{
		mq:      mq,
		handler: handler,
		metrics: m,
		logger:  logger.With("component", "done-consumer"),
		timeout: 10 * time.Second,
	}
}

// Start 開始訂閱
func (c *DoneConsumer) Start() error {
	sub, err := c.mq.Subscribe(SubjectDone, c.onMessage)
	if err != nil {
		return err
	}
	c.sub = sub
	c.logger.Info("consuming video done events", "durable", c.mq.opts.Durable)
	return nil
}

// Stop 停止接收新訊息，處理中的訊息會完成
func (c *DoneConsumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}

func (c *DoneConsumer) onMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	switch err := c.Process(ctx, msg.Data); {
	case err == nil:
		c.metrics.QueueMessagesTotal.WithLabelValues(SubjectDone, "ack").Inc()
		_ = msg.Ack()
	case errors.Is(err, ErrMalformed):
		// 重送不會修好格式錯誤，直接終止
		c.metrics.QueueMessagesTotal.WithLabelValues(SubjectDone, "term").Inc()
		c.logger.Error("drop malformed done event", "error", err, "payload", string(msg.Data))
		_ = msg.Term()
	default:
		c.metrics.QueueMessagesTotal.WithLabelValues(SubjectDone, "nak").Inc()
		c.logger.Warn("done event failed, will redeliver", "error", err)
		_ = msg.NakWithDelay(time.Second)
	}
}

// Process 解析並處理一筆完成事件
func (c *DoneConsumer) Process(ctx context.Context, data []byte) error {
	videoID, success, err := DecodeVideoDone(data)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "video conversion done", "video_id", videoID.Hex(), "success", success)
	return c.handler.VideoDone(ctx, videoID, success)
}
