package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"nickchat/protocol"
	"nickchat/server"
)

// Control socket commands.
const (
	ctlStats    = "stats"
	ctlHistory  = "history"
	ctlShutdown = "shutdown"
)

const defaultHistoryLimit = 50

// serveControl answers management commands on a unix socket until ctx is
// done. A shutdown command calls shutdown after replying.
func serveControl(ctx context.Context, path string, srv *server.Server, shutdown func()) error {
	// a stale socket from a previous run blocks Listen
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	slog.Info("control socket listening", "path", path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("control accept failed", "error", err)
			continue
		}

		go handleControlCommand(srv, conn, shutdown)
	}
}

func handleControlCommand(srv *server.Server, conn net.Conn, shutdown func()) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	fields := protocol.SplitFields(strings.TrimSpace(line))

	switch fields[0] {
	case ctlStats:
		conn.Write([]byte(protocol.FormatOK(formatStats(srv.Stats()))))

	case ctlHistory:
		if len(fields) < 2 || fields[1] == "" {
			conn.Write([]byte(protocol.FormatError(protocol.CodeBadFormat)))
			return
		}
		limit := defaultHistoryLimit
		if len(fields) >= 3 {
			n, err := strconv.Atoi(fields[2])
			if err != nil || n <= 0 {
				conn.Write([]byte(protocol.FormatError(protocol.CodeBadFormat)))
				return
			}
			limit = n
		}

		entries, err := srv.History(fields[1], limit)
		if err != nil {
			conn.Write([]byte(protocol.FormatError(protocol.CodeInternal)))
			return
		}
		var b strings.Builder
		b.WriteString(protocol.FormatOK(strconv.Itoa(len(entries))))
		for _, e := range entries {
			b.WriteString(protocol.FormatPacket("MSG", e.ID, e.From, e.Text,
				strconv.FormatInt(e.Timestamp.Unix(), 10), e.Status))
		}
		conn.Write([]byte(b.String()))

	case ctlShutdown:
		conn.Write([]byte(protocol.FormatOK("Shutting down")))
		slog.Info("shutdown requested over control socket")
		shutdown()

	default:
		conn.Write([]byte(protocol.FormatError(protocol.CodeUnknownCommand)))
	}
}

func formatStats(st server.Stats) string {
	parts := []string{
		"users=" + strconv.Itoa(st.Directory.Registered),
		"online=" + strconv.Itoa(st.Directory.Online),
		"queued=" + strconv.Itoa(st.Directory.Queued),
		"connections=" + strconv.Itoa(st.Connections),
	}
	if st.Journal != nil {
		parts = append(parts,
			"journal_delivered="+strconv.Itoa(st.Journal.Delivered),
			"journal_queued="+strconv.Itoa(st.Journal.Queued),
			"journal_discarded="+strconv.Itoa(st.Journal.Discarded),
		)
	}
	return strings.Join(parts, ",")
}
