package oms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"ClientPulse/internal/domain/models"
	drepo "ClientPulse/internal/domain/repository"
	"ClientPulse/pkg/util"

	"github.com/gorilla/websocket"
)

// Client implements a TradeStream backed by the OMS execution WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	books          []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new OMS TradeStream.
func New(apiKey, websocketURL string, books []string, reconnectDelay, pingInterval time.Duration) drepo.TradeStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		books:          books,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	hdr := http.Header{}
	if c.apiKey != "" {
		hdr.Set("X-API-Key", c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, hdr)
	if err != nil {
		return fmt.Errorf("oms connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("oms: connected")
	return nil
}

// Subscribe subscribes to configured desk books.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("oms not connected")
	}
	for _, b := range c.books {
		msg := map[string]string{"type": "subscribe", "book": b}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", b, err)
		}
		log.Printf("oms: subscribed %s", b)
	}
	return nil
}

type omsMessage struct {
	Type string                   `json:"type"`
	Data []models.RawTradeRecord  `json:"data"`
}

// Read streams executed trades and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.TradeRecord, <-chan error) {
	trades := make(chan *models.TradeRecord, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(trades)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("oms conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("oms read: %w", err)
					return
				}
				var m omsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-execution frames
					continue
				}
				if m.Type != "execution" {
					continue
				}
				for _, d := range m.Data {
					rec, ok := toRecord(d)
					if !ok {
						continue
					}
					select {
					case trades <- rec:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return trades, errs
}

// toRecord converts a wire execution to a TradeRecord. Records missing a
// client, instrument, or parseable timestamp are skipped.
func toRecord(d models.RawTradeRecord) (*models.TradeRecord, bool) {
	if d.ClientID == "" || d.Instrument == "" {
		return nil, false
	}
	ts, ok := util.ParseTime(d.Timestamp)
	if !ok {
		return nil, false
	}
	var side models.Side
	switch d.Side {
	case "BUY", "buy", "B":
		side = models.SideBuy
	case "SELL", "sell", "S":
		side = models.SideSell
	default:
		return nil, false
	}
	return &models.TradeRecord{
		TradeID:    d.TradeID,
		ClientID:   d.ClientID,
		Timestamp:  ts,
		Instrument: d.Instrument,
		Side:       side,
		Quantity:   d.Quantity,
		Price:      d.Price,
		OrderType:  d.OrderType,
		Venue:      d.Venue,
	}, true
}
