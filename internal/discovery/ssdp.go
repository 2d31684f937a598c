package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const ssdpMulticastAddr = "239.255.255.250:1900"

// SearchResponse holds the headers of one SSDP M-SEARCH reply.
type SearchResponse struct {
	ST       string
	USN      string
	Location string
	Server   string
}

// buildSearchRequest renders an M-SEARCH request. The Pro firmware only
// answers when there is a space between "ST:" and the value on top of the
// usual separator, so the target is written with a leading space.
func buildSearchRequest(st string, wait time.Duration) []byte {
	mx := int(wait / time.Second)
	if mx < 1 {
		mx = 1
	}
	return []byte(fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST:  %s\r\n"+
		"\r\n", ssdpMulticastAddr, mx, st))
}

func parseSearchResponse(b []byte) (SearchResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("failed to parse ssdp response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResponse{}, fmt.Errorf("ssdp response status %d", resp.StatusCode)
	}
	return SearchResponse{
		ST:       resp.Header.Get("St"),
		USN:      resp.Header.Get("Usn"),
		Location: resp.Header.Get("Location"),
		Server:   resp.Header.Get("Server"),
	}, nil
}

// Search multicasts an M-SEARCH for st and collects replies until wait
// elapses or ctx is done.
func Search(ctx context.Context, st string, wait time.Duration) ([]SearchResponse, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open ssdp socket: %w", err)
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ssdp address: %w", err)
	}
	if _, err := conn.WriteTo(buildSearchRequest(st, wait), addr); err != nil {
		return nil, fmt.Errorf("failed to send m-search: %w", err)
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	var responses []SearchResponse
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return responses, fmt.Errorf("failed to read ssdp response: %w", err)
		}
		resp, err := parseSearchResponse(buf[:n])
		if err != nil {
			continue
		}
		responses = append(responses, resp)
	}

	if err := ctx.Err(); err != nil && len(responses) == 0 {
		return nil, err
	}
	return responses, nil
}
