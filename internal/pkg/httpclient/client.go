// internal/pkg/httpclient/client.go
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"shopmesh/internal/pkg/nacos"
)

// Client 是一个可追踪的、可注入的服务间 HTTP 客户端。
// 服务地址优先通过 Nacos 发现，未接入 Nacos 时回退到静态地址表。
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client

	nacosClient *nacos.Client
	staticURLs  map[string]string
}

// NewClient 创建一个新的客户端实例。nacosClient 和 staticURLs 均可为空。
func NewClient(tracer trace.Tracer, nacosClient *nacos.Client, staticURLs map[string]string) *Client {
	// 不设置全局 Timeout，超时完全受控于每次请求传入的 context
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:      tracer,
		HTTPClient:  httpClient,
		nacosClient: nacosClient,
		staticURLs:  staticURLs,
	}
}

// serviceBaseURL 解析目标服务的基础地址。
func (c *Client) serviceBaseURL(serviceName string) (string, error) {
	if c.nacosClient != nil {
		ip, port, err := c.nacosClient.DiscoverServiceInstance(serviceName)
		if err == nil {
			return fmt.Sprintf("http://%s:%d", ip, port), nil
		}
		// Nacos 不可用时继续尝试静态地址
	}
	if base, ok := c.staticURLs[serviceName]; ok && base != "" {
		return strings.TrimSuffix(base, "/"), nil
	}
	return "", fmt.Errorf("no address known for service '%s'", serviceName)
}

// CallJSON 调用目标服务的一个 JSON 接口并把响应体解码到 out。
// 返回的是 HTTP 状态码；非 2xx 不视为错误，由调用方根据状态码和响应体内容判断结果。
// 只有传输层失败（连接、超时、解码）才返回 error。
func (c *Client) CallJSON(ctx context.Context, method, serviceName, path string, params url.Values, out any) (int, error) {
	base, err := c.serviceBaseURL(serviceName)
	if err != nil {
		return 0, err
	}

	ctx, span := c.Tracer.Start(ctx, fmt.Sprintf("call-%s", serviceName), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	downstreamURL, err := url.Parse(base + path)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	q := downstreamURL.Query()
	for key, values := range params {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	downstreamURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, downstreamURL.String(), nil)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return resp.StatusCode, err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			span.RecordError(err)
			return resp.StatusCode, fmt.Errorf("failed to decode response from %s%s: %w", serviceName, path, err)
		}
	}
	return resp.StatusCode, nil
}
