package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"market-chat/auth"
	"market-chat/gateway"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type BaseSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenManager
}

// SetupSuite loads the environment configuration and skips when no server is targeted.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HTTPAddr == "" {
		s.T().Skip("E2E_HTTP_ADDR not set")
	}
	s.Require().NotEmpty(s.Config.JWTSecret, "JWT_SECRET is required")
	s.tokens = auth.NewTokenManager(s.Config.JWTSecret)
}

func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseSuite) Token(userID, name string) string {
	token, err := s.tokens.GenerateToken(userID, name, time.Hour)
	s.Require().NoError(err)
	return token
}

// Client is one browser tab.
type Client struct {
	s    *BaseSuite
	name string
	conn *websocket.Conn
}

func (s *BaseSuite) Connect(name, token string) *Client {
	u := url.URL{Scheme: "ws", Host: s.Config.HTTPAddr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to open websocket on "+s.Config.HTTPAddr)
	return &Client{s: s, name: name, conn: conn}
}

func (c *Client) Close() { _ = c.conn.Close() }

func (c *Client) Write(in gateway.Inbound) {
	c.debug("->", in)
	c.s.Require().NoError(c.conn.WriteJSON(in))
}

// Expect reads frames until one of the given type arrives.
func (c *Client) Expect(frameType gateway.FrameType) gateway.Outbound {
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.s.Require().NoError(c.conn.SetReadDeadline(deadline))
		var frame gateway.Outbound
		c.s.Require().NoError(c.conn.ReadJSON(&frame), "%s is waiting for %s", c.name, frameType)
		c.debug("<-", frame)
		if frame.Type == frameType {
			return frame
		}
	}
}

func (c *Client) debug(direction string, frame any) {
	if !c.s.Config.DebugJSON {
		return
	}
	data, _ := json.MarshalIndent(frame, "", "  ")
	c.s.T().Logf("%s %s %s", c.name, direction, data)
}

// GetJSON calls the REST surface as the bearer of token.
func (s *BaseSuite) GetJSON(path, token string, out any) int {
	request, err := http.NewRequest(http.MethodGet, "http://"+s.Config.HTTPAddr+path, nil)
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer response.Body.Close()
	if out != nil && response.StatusCode == http.StatusOK {
		s.Require().NoError(json.NewDecoder(response.Body).Decode(out))
	}
	return response.StatusCode
}

// GrpcConn initializes a gRPC connection logging every call, with bodies when E2E_DEBUG_JSON is set.
func (s *BaseSuite) GrpcConn(name string) *grpc.ClientConn {
	s.Step(name)
	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(s.Config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err == nil {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	return conn
}
