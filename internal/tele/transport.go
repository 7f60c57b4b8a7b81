package tele

import (
	"context"

	tele_config "github.com/temoto/gsmrelay/internal/tele/config"
	"github.com/temoto/gsmrelay/log2"
)

// Transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* return false when the message could not be handed to the network;
//   callers decide whether to log or drop, there is no retry queue
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error
	CloseTele()
	SendState(payload []byte) bool
	SendError(payload []byte) bool
	SendRelay(payload []byte) bool
	SendSummary(payload []byte) bool
}
