package httpapi

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/stream"
)

// mjpgPreamble is the literal response header written over the hijacked
// socket before a client is handed to the Client Registry (§4.6, §6).
const mjpgPreamble = "HTTP/1.0 200 OK\r\n" +
	"Cache-Control: no-cache\r\n" +
	"Cache-Control: private\r\n" +
	"Content-Type: multipart/x-mixed-replace;boundary=--boundary\r\n\r\n"

// handleMJPG hijacks the client socket and hands it to the Client Registry,
// starting the Capture Loop if this is the first client. The handler itself
// returns only after the client disconnects; the actual frame writes happen
// from the Capture Loop's Dispatch, not from this goroutine.
func (s *Server) handleMJPG(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	conn, rw, err := hijacker.Hijack()
	if err != nil {
		s.log.Warn("hijack failed", zap.Error(err))
		return
	}

	if _, err := rw.WriteString(mjpgPreamble); err != nil || rw.Flush() != nil {
		s.log.Debug("write mjpg preamble failed", zap.String("addr", r.RemoteAddr))
		_ = conn.Close()
		return
	}

	client := stream.NewClient(conn)
	drained := s.drainUntilClosed(conn)

	n := s.registry.Add(client)
	clientsConnected.Set(float64(n))
	s.events.publish("client-connected", client.Addr())
	if n == 1 {
		s.ensureCaptureLoop()
	}

	<-drained

	s.registry.Remove(client)
	clientsConnected.Set(float64(s.registry.Len()))
	s.events.publish("client-disconnected", client.Addr())
}

// drainUntilClosed reads and discards bytes from conn until a read returns
// fewer bytes than requested or errors, then closes the returned channel. A
// client that never sends anything after the request line simply blocks here
// until Dispatch closes the connection on a failed write, which unblocks the
// pending Read with an error. It never re-enters after an error, matching the
// stop condition in §9's design note on the original's connection-purge
// pattern.
func (s *Server) drainUntilClosed(conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if err != nil || n < len(buf) {
				return
			}
		}
	}()
	return done
}
