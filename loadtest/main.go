package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("url", "http://localhost:8000", "server base URL")
	userCount = flag.Int("pairs", 50, "number of sender/recipient pairs") // ⚠️ Start small, sqlite serialises writes.
	msgCount  = flag.Int("messages", 20, "messages per sender")
	wait      = flag.Duration("wait", 5*time.Second, "how long recipients keep listening after the last send")
)

type LoginResponse struct {
	ID    int    `json:"id"`
	Token string `json:"access_token"`
}

type frame struct {
	Event string `json:"event"`
	Data  struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	} `json:"data"`
}

var sent, received atomic.Int64

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *userCount*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// We will create pairs: User A sends to User B over HTTP, B listens on the stream.
	for i := 0; i < *userCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d received=%d", time.Since(start).Round(time.Millisecond), sent.Load(), received.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	a := authenticate(userA, pass)
	b := authenticate(userB, pass)
	if a == nil || b == nil {
		return // Failed auth
	}

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s/ws/message-stream?id=%d&token=%s", wsURL, b.ID, b.Token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", userB, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		listen(conn, userB)
	}()

	for i := 0; i < *msgCount; i++ {
		if err := sendMessage(a, b.ID, fmt.Sprintf("LoadTest Msg %d from %s", i, userA)); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", userA, err)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	conn.SetReadDeadline(time.Now().Add(*wait))
	<-done
	log.Printf("✅ %s finished sending %d msgs", userA, *msgCount)
}

// sendMessage posts one message and always releases the response body.
func sendMessage(from *LoginResponse, toID int, content string) error {
	resp, err := postJSON("/send-message", from.Token, map[string]any{
		"fromID":  from.ID,
		"toID":    toID,
		"content": content,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func listen(conn *websocket.Conn, user string) {
	got := 0
	for got < *msgCount {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			log.Printf("⚠️ %s stopped listening after %d msgs: %v", user, got, err)
			return
		}
		if f.Event == "message" {
			got++
			received.Add(1)
		}
	}
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(username, password string) *LoginResponse {
	creds := map[string]string{"username": username, "password": password}
	if resp, err := postJSON("/register", "", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/login", "", creds)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login Failed [%s]: status %d", username, resp.StatusCode)
		return nil
	}

	var data LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return nil
	}
	return &data
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	req, err := http.NewRequest(http.MethodPost, *baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
