// Package queue 以 NATS JetStream 連接外部轉檔 worker
//
//	API ──video.conversion──▶ JetStream ──▶ 轉檔 worker
//	API ◀──video.done──────── JetStream ◀── 轉檔 worker
//
// 投遞語義是至少一次，完成事件的處理必須冪等。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Options 佇列設定
type Options struct {
	URL      string
	Stream   string
	Durable  string
	AckWait  time.Duration
	MaxRetry int
	MaxAge   time.Duration
}

// MessageQueue JetStream 連線
type MessageQueue struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	opts   Options
	logger *slog.Logger
	owned  bool
}

// Connect 連接 NATS 並確保 Stream 存在
func Connect(opts Options, logger *slog.Logger) (*MessageQueue, error) {
	conn, err := nats.Connect(
		opts.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	mq, err := New(conn, opts, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	mq.owned = true
	return mq, nil
}

// New 以既有連線建立 MessageQueue
func New(conn *nats.Conn, opts Options, logger *slog.Logger) (*MessageQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	mq := &MessageQueue{
		conn:   conn,
		js:     js,
		opts:   opts,
		logger: logger.With("component", "queue"),
	}
	if err := mq.initStream(); err != nil {
		return nil, err
	}
	return mq, nil
}

// initStream 建立或更新 Stream（冪等）
func (mq *MessageQueue) initStream() error {
	maxAge := mq.opts.MaxAge
	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}
	cfg := &nats.StreamConfig{
		Name:     mq.opts.Stream,
		Subjects: []string{SubjectConversion, SubjectDone},
		Storage:  nats.FileStorage,
		MaxAge:   maxAge,
		Replicas: 1,
	}

	_, err := mq.js.StreamInfo(mq.opts.Stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := mq.js.AddStream(cfg); err != nil {
			return fmt.Errorf("add stream %s: %w", mq.opts.Stream, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stream info %s: %w", mq.opts.Stream, err)
	}

	if _, err := mq.js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("update stream %s: %w", mq.opts.Stream, err)
	}
	return nil
}

// PublishConversion 同步發送轉檔工作，等待 PubAck
func (mq *MessageQueue) PublishConversion(ctx context.Context, job ConversionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal conversion job: %w", err)
	}

	// 以影片 id 作為訊息 id，Stream 的去重窗口內重送不會產生兩筆工作
	ack, err := mq.js.Publish(SubjectConversion, data, nats.Context(ctx), nats.MsgId(job.VideoID))
	if err != nil {
		return fmt.Errorf("publish conversion job: %w", err)
	}

	mq.logger.InfoContext(ctx, "conversion job queued",
		"video_id", job.VideoID,
		"clip_id", job.ObjectID,
		"seq", ack.Sequence,
		"duplicate", ack.Duplicate)
	return nil
}

// PublishDone 發送完成事件（轉檔 worker 與測試使用）
func (mq *MessageQueue) PublishDone(ctx context.Context, msg VideoDone) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal done event: %w", err)
	}
	if _, err := mq.js.Publish(SubjectDone, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish done event: %w", err)
	}
	return nil
}

// Subscribe 以 durable consumer 訂閱主題，手動 ACK
func (mq *MessageQueue) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	ackWait := mq.opts.AckWait
	if ackWait == 0 {
		ackWait = 30 * time.Second
	}
	maxDeliver := mq.opts.MaxRetry
	if maxDeliver <= 0 {
		maxDeliver = -1
	}

	sub, err := mq.js.Subscribe(
		subject,
		handler,
		nats.Durable(mq.opts.Durable),
		nats.ManualAck(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Ping 連線狀態
func (mq *MessageQueue) Ping() error {
	if !mq.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", mq.conn.Status())
	}
	return nil
}

// Close 關閉自己建立的連線
func (mq *MessageQueue) Close() {
	if mq.owned && mq.conn != nil {
		mq.conn.Close()
	}
}
