package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kline-structure/internal/model"
	"kline-structure/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const reconnectDelay = 5 * time.Second

// OkxWsData 适用于 Okx V5 的通用响应结构
type OkxWsData struct {
	Arg struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Data  json.RawMessage `json:"data"` // 使用 RawMessage 延迟解析
	Event string          `json:"event"`
	Msg   string          `json:"msg"`
}

// OkxTradeData 适配 Okx trades 频道数据结构
type OkxTradeData struct {
	Timestamp string `json:"ts"`   // 成交时间 (毫秒字符串)
	Price     string `json:"px"`   // 成交价格
	Size      string `json:"sz"`   // 成交数量
	Side      string `json:"side"` // buy 或 sell (成交方向，用于判断 IsBuyerMaker)
	TradeId   string `json:"tradeId"`
	InstId    string `json:"instId"`
}

// OkxTickerData 结构体，用于解析 tickers 频道数据
type OkxTickerData struct {
	LastPrice string `json:"last"` // 最新成交价 (tickers 频道使用 'last')
	Timestamp string `json:"ts"`
	InstId    string `json:"instId"`
}

// 映射 InstId 到 Symbol (例如 BTC-USDT-SWAP -> BTCUSDT)
type InstMap map[string]string

var quoteCurrencies = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// InstIDFor 构造 Okx 永续合约 instId: BTCUSDT -> BTC-USDT-SWAP。已经是 instId 格式的原样返回。
func InstIDFor(symbol string) string {
	if strings.Contains(symbol, "-") {
		return symbol
	}
	for _, quote := range quoteCurrencies {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "-" + quote + "-SWAP"
		}
	}
	return symbol
}

// Connector 订阅公开成交数据，按 Symbol 分发 Ticker
type Connector struct {
	wsURL        string
	instToSymbol InstMap // InstID -> Symbol 的映射
	channels     map[string][]chan model.Ticker
	logger       *zap.Logger
}

func NewConnector(wsURL string, symbols []string, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = service.Logger
	}
	instToSymbol := make(InstMap, len(symbols))
	for _, symbol := range symbols {
		instToSymbol[InstIDFor(symbol)] = symbol
	}

	logger.Info("Connector initialized", zap.Strings("Symbols", symbols))

	return &Connector{
		wsURL:        wsURL,
		instToSymbol: instToSymbol,
		channels:     make(map[string][]chan model.Ticker, len(symbols)),
		logger:       logger,
	}
}

// Subscribe 为 symbol 创建一个独立的 Ticker 通道，必须在 Start 之前调用。
// Start 退出后通道被关闭。
func (c *Connector) Subscribe(symbol string) <-chan model.Ticker {
	// 确保通道有足够的缓冲区来应对高频数据
	ch := make(chan model.Ticker, 2048)
	c.channels[symbol] = append(c.channels[symbol], ch)
	return ch
}

// Start 连接 WebSocket 并持续接收，断线后自动重连，直到 ctx 结束
func (c *Connector) Start(ctx context.Context) {
	defer func() {
		for _, subs := range c.channels {
			for _, ch := range subs {
				close(ch)
			}
		}
	}()

	for {
		if err := c.run(ctx); err != nil {
			c.logger.Error("WS connection lost, attempting to reconnect...", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.logger.Info("Connector stopped")
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Connector) run(ctx context.Context) error {
	c.logger.Info("Starting Okx WS multi-symbol connection...", zap.String("URL", c.wsURL))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}
	defer conn.Close()

	// ctx 结束时关闭连接，让 ReadMessage 返回
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(c.subscribeMessage()); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}
	c.logger.Info("Subscribed to all Okx TRADE and TICKERS streams successfully")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		tickers, err := ParseMessage(message, c.instToSymbol)
		if err != nil {
			c.logger.Error("WS message decode error", zap.Error(err))
			continue
		}
		c.dispatch(tickers)
	}
}

func (c *Connector) subscribeMessage() map[string]interface{} {
	var args []map[string]string
	for instID := range c.instToSymbol {
		args = append(args, map[string]string{"channel": "trades", "instId": instID})
		args = append(args, map[string]string{"channel": "tickers", "instId": instID})
	}
	// 同时订阅 'trades' 和 'tickers' 频道
	return map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
}

// dispatch 使用 select/default 防止阻塞 Connector
func (c *Connector) dispatch(tickers []model.Ticker) {
	for _, ticker := range tickers {
		for _, ch := range c.channels[ticker.Symbol] {
			select {
			case ch <- ticker:
			default:
				c.logger.Warn("Ticker channel full! Dropping trade data", zap.String("Symbol", ticker.Symbol))
			}
		}
	}
}

// ParseMessage 把一条 Okx 推送解析为 Ticker。订阅确认等事件消息和未订阅的 instId 返回空。
func ParseMessage(message []byte, instToSymbol InstMap) ([]model.Ticker, error) {
	var wsResp OkxWsData
	if err := json.Unmarshal(message, &wsResp); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if wsResp.Event == "error" {
		return nil, fmt.Errorf("okx error event: %s", wsResp.Msg)
	}
	if wsResp.Event != "" {
		return nil, nil // 忽略订阅成功或取消订阅事件
	}

	symbol, ok := instToSymbol[wsResp.Arg.InstId] // 根据 InstID 查找 Symbol
	if !ok || len(wsResp.Data) == 0 {
		return nil, nil
	}

	switch wsResp.Arg.Channel {
	case "trades":
		var trades []OkxTradeData
		if err := json.Unmarshal(wsResp.Data, &trades); err != nil {
			return nil, fmt.Errorf("trade data: %w", err)
		}
		out := make([]model.Ticker, 0, len(trades))
		// 遍历收到的所有成交记录
		for _, okxTrade := range trades {
			price, err := service.StringToFloat(okxTrade.Price)
			if err != nil {
				continue
			}
			volume, err := service.StringToFloat(okxTrade.Size)
			if err != nil {
				continue
			}
			timestamp, err := service.StringToInt64(okxTrade.Timestamp)
			if err != nil {
				continue
			}
			// side="buy" 意味着这是一笔主动买入 (Taker 买入)，否则为主动卖出
			out = append(out, model.Ticker{
				Symbol:       symbol,
				Timestamp:    timestamp,
				Price:        price,
				Volume:       volume,
				IsBuyerMaker: okxTrade.Side != "buy",
			})
		}
		return out, nil

	case "tickers":
		var tickers []OkxTickerData
		if err := json.Unmarshal(wsResp.Data, &tickers); err != nil {
			return nil, fmt.Errorf("tickers data: %w", err)
		}
		if len(tickers) == 0 {
			return nil, nil
		}
		okxTicker := tickers[0] // 仅处理最新的快照
		price, err := service.StringToFloat(okxTicker.LastPrice)
		if err != nil {
			return nil, nil
		}
		timestamp, err := service.StringToInt64(okxTicker.Timestamp)
		if err != nil {
			return nil, nil
		}
		// volume=0 表示价格快照
		return []model.Ticker{{Symbol: symbol, Timestamp: timestamp, Price: price}}, nil
	}
	return nil, nil
}
