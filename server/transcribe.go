package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/resilience"
	"github.com/kbukum/audioscribe/server/middleware"
	"github.com/kbukum/audioscribe/session"
)

// Route paths.
const (
	PathUploadStream = "/ws/transcribe"
	PathURLStream    = "/ws/transcribe-youtube"
	PathTranscribe   = "/transcribe"
)

// Sessions is the session layer as seen by the routes.
type Sessions interface {
	ServeUpload(ctx context.Context, conn session.Conn) error
	ServeURL(ctx context.Context, conn session.Conn) error
	TranscribeFile(ctx context.Context, filename string, r io.Reader) (*session.Transcript, error)
}

// uploadFrameSlack is how far the WebSocket read limit sits above the
// session's upload cap, so an oversize file reaches the session and is
// answered with an error event instead of a dropped connection.
const uploadFrameSlack = 1 << 20

// uploadLimited is implemented by sessions that cap upload size.
type uploadLimited interface {
	MaxUploadBytes() int64
}

// TranscribeRoutes serves the streaming and single-shot transcription
// routes. It tracks live WebSocket sessions so Close can end them.
type TranscribeRoutes struct {
	sessions     Sessions
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration
	limiter      *resilience.KeyedRateLimiter
	log          *logger.Logger

	base   context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	live   sync.WaitGroup
}

// NewTranscribeRoutes creates the routes. cfg must have defaults applied.
func NewTranscribeRoutes(sessions Sessions, cfg Config, log *logger.Logger) *TranscribeRoutes {
	base, cancel := context.WithCancel(context.Background())
	cors := cfg.CORS
	return &TranscribeRoutes{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: seconds(cfg.WebSocket.HandshakeTimeout),
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cors.AllowsOrigin(origin)
			},
		},
		readLimit:    readLimit(sessions, cfg.WebSocket),
		writeTimeout: seconds(cfg.WebSocket.WriteTimeout),
		limiter:      resilience.NewKeyedRateLimiter(cfg.RateLimit, 0),
		log:          logger.OrDefault(log).WithComponent("transcribe-routes"),
		base:         base,
		cancel:       cancel,
	}
}

// readLimit is the configured frame cap, raised above the session's upload
// cap when that one is larger.
func readLimit(sessions Sessions, cfg WebSocketConfig) int64 {
	limit := middleware.ParseSize(cfg.MaxMessageSize, 200<<20)
	if u, ok := sessions.(uploadLimited); ok && u.MaxUploadBytes() > 0 {
		limit = max(limit, u.MaxUploadBytes()+uploadFrameSlack)
	}
	return limit
}

// Register adds the routes to r.
func (t *TranscribeRoutes) Register(r gin.IRouter) {
	r.GET(PathUploadStream, t.Upload)
	r.GET(PathURLStream, t.URL)
	r.POST(PathTranscribe, middleware.RateLimit(t.limiter, nil), t.Transcribe)
}

// Upload serves the upload loop.
func (t *TranscribeRoutes) Upload(c *gin.Context) {
	t.stream(c, session.KindUpload, t.sessions.ServeUpload)
}

// URL serves one remote URL job.
func (t *TranscribeRoutes) URL(c *gin.Context) {
	t.stream(c, session.KindURL, t.sessions.ServeURL)
}

// Transcribe answers a multipart upload with the joined transcript. The
// file part is streamed to disk without buffering the request in memory.
func (t *TranscribeRoutes) Transcribe(c *gin.Context) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		RespondWithError(c, apperrors.InvalidSource("", "expected a multipart/form-data body").WithCause(err))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			RespondWithError(c, apperrors.InvalidSource("", `multipart field "file" is required`))
			return
		}
		if err != nil {
			RespondWithError(c, apperrors.InvalidSource("", "malformed multipart body").WithCause(err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		out, err := t.sessions.TranscribeFile(c.Request.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
		return
	}
}

// Close ends every live WebSocket session and waits for them to return.
func (t *TranscribeRoutes) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.live.Wait()
}

// track registers a new session unless Close has run.
func (t *TranscribeRoutes) track() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.live.Add(1)
	return true
}

func (t *TranscribeRoutes) stream(c *gin.Context, kind string, serve func(context.Context, session.Conn) error) {
	ws, err := t.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		t.log.Debug("websocket upgrade failed", logger.Fields(logger.FieldError, err.Error()))
		return
	}
	if !t.track() {
		closeConn(ws, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer t.live.Done()

	ws.SetReadLimit(t.readLimit)
	ctx, cancel := context.WithCancel(t.base)
	defer cancel()

	start := time.Now()
	err = serve(ctx, &wsConn{conn: ws, writeTimeout: t.writeTimeout})

	code, reason := closeStatus(ctx, err)
	closeConn(ws, code, reason)

	fields := logger.Fields(logger.FieldSessionKind, kind, logger.FieldDuration, time.Since(start).Milliseconds())
	if err != nil {
		fields[logger.FieldError] = err.Error()
	}
	t.log.Info("session ended", fields)
}

// closeStatus maps how a session ended to a close frame.
func closeStatus(ctx context.Context, err error) (int, string) {
	switch {
	case err == nil:
		return websocket.CloseNormalClosure, ""
	case apperrors.IsCode(err, apperrors.ErrCodeProtocol):
		return websocket.ClosePolicyViolation, apperrors.From(err).Message
	case ctx.Err() != nil:
		return websocket.CloseGoingAway, "server shutting down"
	default:
		return websocket.CloseInternalServerErr, ""
	}
}

func closeConn(ws *websocket.Conn, code int, reason string) {
	// Control frame payloads are limited to 125 bytes.
	if len(reason) > 120 {
		reason = reason[:120]
	}
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = ws.Close()
}

// wsConn adapts a gorilla connection to session.Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (w *wsConn) ReadMessage() (session.MessageType, []byte, error) {
	typ, data, err := w.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	if typ == websocket.BinaryMessage {
		return session.BinaryMessage, data, nil
	}
	return session.TextMessage, data, nil
}

func (w *wsConn) WriteJSON(v any) error {
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteJSON(v)
}
