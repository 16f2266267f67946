package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-bff/internal/data/cryptoutil"
	"github.com/target/mmk-bff/internal/domain/session"
)

// ErrUnsupportedEnvelope is returned when an envelope carries an unknown version.
var ErrUnsupportedEnvelope = errors.New("unsupported ticket envelope version")

// TicketCodec converts tickets to and from encrypted, versioned envelopes.
// It is stateless apart from its encryptor and safe for concurrent use.
type TicketCodec struct {
	enc    cryptoutil.Encryptor
	logger *slog.Logger
}

// NewTicketCodec creates a codec sealing payloads with enc.
func NewTicketCodec(enc cryptoutil.Encryptor, logger *slog.Logger) *TicketCodec {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketCodec{enc: enc, logger: logger.With("component", "ticket_codec")}
}

// Serialize encodes t as JSON, encrypts it and wraps it in a current-version envelope.
func (c *TicketCodec) Serialize(t session.Ticket) (string, error) {
	plain, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal ticket: %w", err)
	}
	payload, err := c.enc.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("encrypt ticket: %w", err)
	}
	out, err := json.Marshal(session.Envelope{Version: session.CurrentEnvelopeVersion, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// Deserialize returns the ticket inside raw, or nil when raw cannot be opened for any reason.
// Callers decide what to do with the unusable row.
func (c *TicketCodec) Deserialize(ctx context.Context, raw string) *session.Ticket {
	t, err := c.decode(raw)
	if err != nil {
		if errors.Is(err, cryptoutil.ErrDecrypt) {
			c.logger.WarnContext(ctx, "failed to decrypt ticket payload", "error", err)
		} else {
			c.logger.WarnContext(ctx, "failed to decode ticket", "error", err)
		}
		return nil
	}
	return t
}

func (c *TicketCodec) decode(raw string) (*session.Ticket, error) {
	var env session.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != session.CurrentEnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEnvelope, env.Version)
	}
	plain, err := c.enc.Decrypt(env.Payload)
	if err != nil {
		return nil, err
	}
	var t session.Ticket
	if err := json.Unmarshal(plain, &t); err != nil {
		return nil, fmt.Errorf("unmarshal ticket: %w", err)
	}
	return &t, nil
}
