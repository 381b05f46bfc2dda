package eventbridge

import (
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fastami/internal/ami"
)

// Bridge connects an AMI event subscription to the websocket hub.
type Bridge struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBridge creates the bridge with its own hub.
func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.New(zapcore.NewNopCore())
	}
	return &Bridge{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Pump re-emits every event from the subscription until the channel closes.
func (b *Bridge) Pump(events <-chan ami.Message) {
	for event := range events {
		b.hub.Broadcast("ami_event", event)
	}
	b.logger.Info("AMI subscription closed")
}

// Serve starts the hub and the websocket endpoint on addr. It blocks.
func (b *Bridge) Serve(addr string) error {
	go b.hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.hub.HandleWebSocket)

	b.logger.Info("websocket bridge listening", zap.String("addr", "ws://"+addr+"/ws"))
	return http.ListenAndServe(addr, mux)
}
