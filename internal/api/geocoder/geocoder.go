package geocoder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	defaultAmapURL      = "https://restapi.amap.com/v3/geocode/regeo"
	defaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
	maxCacheEntries     = 10000
)

// Address 结构化地址
type Address struct {
	FormattedAddress string `json:"formatted_address"`
	Country          string `json:"country"`
	Province         string `json:"province"`
	City             string `json:"city"`
	District         string `json:"district"`
	Street           string `json:"street"`
}

// Client 逆地理编码客户端
// 配置了高德 API Key 时使用高德，否则使用 Nominatim
type Client struct {
	amapAPIKey   string
	amapURL      string
	nominatimURL string
	minInterval  time.Duration
	httpClient   *http.Client
	logger       *zap.Logger

	// 缓存：避免重复请求相同坐标
	cache   map[string]*Address
	cacheMu sync.RWMutex

	// Nominatim 请求限流
	lastNominatimRequest time.Time
	nominatimMu          sync.Mutex
}

// Option 客户端选项
type Option func(*Client)

// WithEndpoints 覆盖服务地址
func WithEndpoints(amapURL, nominatimURL string) Option {
	return func(c *Client) {
		if amapURL != "" {
			c.amapURL = amapURL
		}
		if nominatimURL != "" {
			c.nominatimURL = nominatimURL
		}
	}
}

// WithMinInterval Nominatim 两次请求的最小间隔
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

// NewClient 创建逆地理编码客户端
func NewClient(amapAPIKey string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		amapAPIKey:   amapAPIKey,
		amapURL:      defaultAmapURL,
		nominatimURL: defaultNominatimURL,
		minInterval:  1100 * time.Millisecond,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		cache:  make(map[string]*Address),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReverseGeocode 根据经纬度获取结构化地址
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error) {
	// 精确到小数点后4位，约11米
	cacheKey := fmt.Sprintf("%.4f,%.4f", lat, lng)

	c.cacheMu.RLock()
	if addr, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return addr, nil
	}
	c.cacheMu.RUnlock()

	var address *Address
	var err error
	if c.amapAPIKey != "" {
		address, err = c.reverseGeocodeAmap(ctx, lat, lng)
	} else {
		address, err = c.reverseGeocodeNominatim(ctx, lat, lng)
	}
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	if len(c.cache) >= maxCacheEntries {
		c.cache = make(map[string]*Address)
	}
	c.cache[cacheKey] = address
	c.cacheMu.Unlock()

	return address, nil
}

// GetProvider 当前使用的服务提供商
func (c *Client) GetProvider() string {
	if c.amapAPIKey != "" {
		return "amap"
	}
	return "nominatim"
}

// ============ 高德地图 ============

type amapRegeoResponse struct {
	Status    string         `json:"status"`
	Info      string         `json:"info"`
	InfoCode  string         `json:"infocode"`
	Regeocode *amapRegeocode `json:"regeocode"`
}

type amapRegeocode struct {
	FormattedAddress any                  `json:"formatted_address"`
	AddressComponent amapAddressComponent `json:"addressComponent"`
}

// 高德在字段为空时返回 [] 而不是字符串
type amapAddressComponent struct {
	Country  any `json:"country"`
	Province any `json:"province"`
	City     any `json:"city"`
	District any `json:"district"`
	Township any `json:"township"`
}

func (c *Client) reverseGeocodeAmap(ctx context.Context, lat, lng float64) (*Address, error) {
	// 高德要求经度在前
	q := url.Values{}
	q.Set("key", c.amapAPIKey)
	q.Set("location", fmt.Sprintf("%.6f,%.6f", lng, lat))
	q.Set("extensions", "base")
	q.Set("output", "JSON")

	var result amapRegeoResponse
	if err := c.getJSON(ctx, c.amapURL+"?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("amap: %w", err)
	}
	if result.Status != "1" {
		return nil, fmt.Errorf("amap api error: %s (code: %s)", result.Info, result.InfoCode)
	}
	if result.Regeocode == nil {
		return nil, fmt.Errorf("amap: no regeocode result")
	}

	comp := result.Regeocode.AddressComponent
	address := &Address{
		FormattedAddress: asString(result.Regeocode.FormattedAddress),
		Country:          asString(comp.Country),
		Province:         asString(comp.Province),
		City:             asString(comp.City),
		District:         asString(comp.District),
		Street:           asString(comp.Township),
	}

	c.logger.Debug("Geocoded via Amap",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("address", address.FormattedAddress))

	return address, nil
}

// ============ Nominatim (OpenStreetMap) ============

type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	Road    string `json:"road"`
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	County  string `json:"county"`
	State   string `json:"state"`
	Country string `json:"country"`
}

func (c *Client) reverseGeocodeNominatim(ctx context.Context, lat, lng float64) (*Address, error) {
	c.nominatimMu.Lock()
	if wait := c.minInterval - time.Since(c.lastNominatimRequest); wait > 0 {
		select {
		case <-ctx.Done():
			c.nominatimMu.Unlock()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	c.lastNominatimRequest = time.Now()
	c.nominatimMu.Unlock()

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lng))
	q.Set("format", "json")
	q.Set("accept-language", "en")

	var result nominatimResponse
	if err := c.getJSON(ctx, c.nominatimURL+"?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}

	// 城市字段可能在 city/town/village 中
	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}

	address := &Address{
		FormattedAddress: result.DisplayName,
		Country:          result.Address.Country,
		Province:         result.Address.State,
		City:             city,
		District:         result.Address.County,
		Street:           result.Address.Road,
	}

	c.logger.Debug("Geocoded via Nominatim",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("address", address.FormattedAddress))

	return address, nil
}

func (c *Client) getJSON(ctx context.Context, apiURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// Nominatim 要求设置 User-Agent
	req.Header.Set("User-Agent", "Tripgazer/1.0 (vehicle trip dashboard)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ClearCache 清空缓存
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	c.cache = make(map[string]*Address)
	c.cacheMu.Unlock()
}

// CacheSize 缓存大小
func (c *Client) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}
