package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type Response struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Kind       string          `json:"kind"`
	Success    bool            `json:"success"`
}

type Frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type Account struct {
	ID    string
	Token string
}

type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ChatURL == "" {
		s.T().Skip("CHAT_URL not set")
	}
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a colorized header for a scenario step.
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call sends a JSON request and decodes the envelope, logging the round trip.
func (s *BaseHTTPSuite) Call(method, path, token string, body any) Response {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	req, err := http.NewRequest(method, s.Config.ChatURL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s\nRESPONSE:\n%s", payload, raw)
	}
	s.T().Log(logBuilder.String())

	var decoded Response
	s.Require().NoError(json.Unmarshal(raw, &decoded))
	return decoded
}

// Register creates a throwaway account with a unique username.
func (s *BaseHTTPSuite) Register(prefix string) Account {
	username := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	resp := s.Call(http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "Sup3r-Secret!",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode, resp.Message)
	var session struct {
		Token string `json:"accessToken"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &session))
	return Account{ID: session.User.ID, Token: session.Token}
}

// Dial opens a websocket for account and waits until it is registered.
func (s *BaseHTTPSuite) Dial(account Account) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.Config.ChatURL, "http") + "/ws?token=" + account.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.Require().Equal("connected", s.Next(conn).Kind)
	return conn
}

func (s *BaseHTTPSuite) Next(conn *websocket.Conn) Frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var f Frame
	s.Require().NoError(conn.ReadJSON(&f))
	return f
}
