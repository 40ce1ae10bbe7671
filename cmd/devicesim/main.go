// Command devicesim plays a tracker against a running gateway: it logs in over
// TCP, sends a few packets, prints whatever the gateway writes back and can
// optionally exercise the HTTP submission endpoint.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"devicegateway/internal/api/util"
	"devicegateway/internal/protocol/sinocastel"
)

type submitRequest struct {
	IMEI string `json:"imei"`
	Data string `json:"data"`
}

func main() {
	tcpAddr := flag.String("tcp", "127.0.0.1:4000", "gateway TCP address")
	httpURL := flag.String("http", "", "gateway HTTP base URL, e.g. http://127.0.0.1:3000 (empty skips the API test)")
	deviceID := flag.String("device", "218L1EB2023000561", "device identity placed in each frame")
	jwtSecret := flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "secret used to sign the submission token")
	interval := flag.Duration("interval", 500*time.Millisecond, "pause between packets")
	lookups := flag.Int("lookups", 3, "timed directory lookups after the API test")
	flag.Parse()

	packets := []struct {
		name  string
		frame []byte
	}{
		{name: "login", frame: sinocastel.EncodeFrame([]byte(*deviceID), [2]byte{0x10, 0x01}, []byte{0x00})},
		{name: "status", frame: sinocastel.EncodeFrame([]byte(*deviceID), [2]byte{0x40, 0x01}, []byte{0x01, 0x02, 0x03})},
		{name: "truncated", frame: []byte{0x40, 0x40, 0x29, 0x00}},
	}

	fmt.Printf("Connecting to %s...\n", *tcpAddr)
	conn, err := net.DialTimeout("tcp", *tcpAddr, 5*time.Second)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to gateway")
	}
	defer conn.Close()

	for _, p := range packets {
		fmt.Printf("\nSending %s packet (%d bytes)\n%s\n", p.name, len(p.frame), hex.EncodeToString(p.frame))
		if _, err := conn.Write(p.frame); err != nil {
			log.WithError(err).Fatal("Failed to send packet")
		}
		reply, err := readReply(conn, *interval)
		if err != nil {
			log.WithError(err).Fatal("Failed to read reply")
		}
		if len(reply) == 0 {
			fmt.Println("No reply")
		} else {
			fmt.Printf("Reply (%d bytes): %X\n", len(reply), reply)
		}
	}

	if *httpURL != "" {
		fmt.Println("\nTesting device submission API...")
		imei := hex.EncodeToString([]byte(*deviceID))
		if err := submit(*httpURL, imei, *jwtSecret); err != nil {
			log.WithError(err).Fatal("Submission failed")
		}
		if *lookups > 0 {
			fmt.Println("\nTesting device lookup response times...")
			timeLookups(*httpURL, imei, *lookups)
		}
	}
}

// timeLookups repeats a directory lookup; later calls should be served from cache.
func timeLookups(baseURL, imei string, n int) {
	client := &http.Client{Timeout: 5 * time.Second}
	url := baseURL + "/api/devices/" + imei
	for i := 0; i < n; i++ {
		start := time.Now()
		resp, err := client.Get(url)
		if err != nil {
			log.WithError(err).Warn("Lookup failed")
			continue
		}
		resp.Body.Close()
		fmt.Printf("Request %d - Response time: %v - Status: %d\n", i+1, time.Since(start), resp.StatusCode)
	}
}

// readReply collects bytes until the connection has been quiet for wait.
func readReply(conn net.Conn, wait time.Duration) ([]byte, error) {
	var out []byte
	buf := make([]byte, 1024)
	for {
		conn.SetReadDeadline(time.Now().Add(wait))
		n, err := conn.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return out, nil
			}
			return out, err
		}
	}
}

func submit(baseURL, imei, secret string) error {
	body, err := json.Marshal(submitRequest{IMEI: imei, Data: "devicesim"})
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/device", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		token, err := util.IssueToken(secret, "devicesim", 15*time.Minute)
		if err != nil {
			return fmt.Errorf("error signing token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	fmt.Printf("Response status: %d\n", resp.StatusCode)
	fmt.Printf("Response body: %s\n", string(respBody))
	return nil
}
