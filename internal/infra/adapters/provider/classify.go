// File: internal/infra/adapters/provider/classify.go
package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"ai-generation-broker/internal/domain"

	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

// classify maps heterogeneous upstream error shapes to the broker's fixed
// taxonomy at the transport boundary. Downstream code only ever sees
// *domain.GenerationError and decides on fallback/penalty from its code,
// never from provider-specific fields or message substrings.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsGenerationError(err); ok {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewGenerationError(domain.CodeUpstreamTimeout, "upstream call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewGenerationError(domain.CodeUpstreamTimeout, "upstream call timed out", err)
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return classifyHTTP(oaiErr.StatusCode, oaiErr.Code, oaiErr.Message, headerRetryMs(oaiErr.Response), err)
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return classifyHTTP(genErr.Code, genErr.Status, genErr.Message, 0, err)
	}

	return domain.NewGenerationError(domain.CodeInternal, err.Error(), err)
}

func classifyHTTP(status int, code, message string, retryMs int64, cause error) error {
	switch {
	case code == "context_length_exceeded":
		return domain.NewGenerationError(domain.CodeContextLengthExceeded, message, cause)
	case status == http.StatusRequestEntityTooLarge:
		return domain.NewGenerationError(domain.CodeRequestTooLarge, message, cause)
	case code == "content_filter" || code == "content_policy_violation":
		return domain.NewGenerationError(domain.CodeContentPolicy, message, cause)
	case code == "insufficient_quota":
		return domain.NewGenerationError(domain.CodeQuotaExhausted, message, cause)
	case status == http.StatusTooManyRequests:
		ge := domain.NewGenerationError(domain.CodeRateLimited, message, cause)
		ge.RemainingTimeout = retryMs
		return ge
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewGenerationError(domain.CodeAccountBanned, message, cause)
	case status == http.StatusBadRequest:
		return domain.NewGenerationError(domain.CodeInvalidInput, message, cause)
	case status >= http.StatusInternalServerError:
		return domain.NewGenerationError(domain.CodeMalformedResponse, message, cause)
	default:
		return domain.NewGenerationError(domain.CodeInternal, message, cause)
	}
}

func headerRetryMs(resp *http.Response) int64 {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return secs * 1000
}
