package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// sessionArchive is the JSON document uploaded at shutdown.
type sessionArchive struct {
	Coin       string              `json:"coin"`
	Strategy   string              `json:"strategy"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Stats      domain.SessionStats `json:"stats"`
	Trades     []archivedTrade     `json:"trades"`
}

type archivedTrade struct {
	ID         string     `json:"id"`
	Side       string     `json:"side"`
	TokenID    string     `json:"token_id"`
	EntryPrice float64    `json:"entry_price"`
	Size       float64    `json:"size"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	PnL        float64    `json:"pnl"`
}

// Archiver uploads one session report per run under
// "sessions/{coin}/{start-timestamp}.json".
type Archiver struct {
	client   *Client
	uploader *manager.Uploader
}

func NewArchiver(c *Client) *Archiver {
	return &Archiver{
		client:   c,
		uploader: manager.NewUploader(c.s3),
	}
}

// ArchiveSession serializes the session and uploads it. Returns the object
// key on success.
func (a *Archiver) ArchiveSession(ctx context.Context, coin, strategy string, startedAt time.Time,
	stats domain.SessionStats, closed []domain.Position) (string, error) {

	doc := sessionArchive{
		Coin:       coin,
		Strategy:   strategy,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Stats:      stats,
		Trades:     make([]archivedTrade, 0, len(closed)),
	}
	for _, p := range closed {
		doc.Trades = append(doc.Trades, archivedTrade{
			ID:         p.ID,
			Side:       p.Side,
			TokenID:    p.TokenID,
			EntryPrice: p.EntryPrice,
			Size:       p.Size,
			OpenedAt:   p.OpenedAt,
			ClosedAt:   p.ClosedAt,
			ExitPrice:  p.ExitPrice,
			PnL:        p.RealizedPnL,
		})
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal session: %w", err)
	}

	key := fmt.Sprintf("sessions/%s/%s.json", coin, startedAt.UTC().Format("2006-01-02T15-04-05"))
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: upload session %s: %w", key, err)
	}
	return key, nil
}
