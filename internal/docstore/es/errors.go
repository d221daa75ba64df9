package es

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/datamast/essync/internal/docstore"
)

// mapTransportError folds a client-side failure into a docstore sentinel.
// Context cancellation and deadlines pass through untouched so callers see
// their own context errors.
func mapTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", docstore.ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
}

// mapStatusError folds an error status into a docstore sentinel. The body is
// consulted for the Elasticsearch error type where the status alone is
// ambiguous, such as a 404 that may mean a missing document or a missing
// index.
func mapStatusError(status int, body []byte) error {
	errType := gjson.GetBytes(body, "error.type").String()
	reason := gjson.GetBytes(body, "error.reason").String()

	switch status {
	case http.StatusNotFound:
		if errType == "index_not_found_exception" {
			return docstore.ErrIndexNotFound
		}
		return docstore.ErrDocumentNotFound
	case http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s", docstore.ErrTimeout, reasonOrStatus(reason, status))
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", docstore.ErrTooManyRequests, reasonOrStatus(reason, status))
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", docstore.ErrConflict, reasonOrStatus(reason, status))
	case http.StatusBadRequest, http.StatusNotAcceptable, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", docstore.ErrInvalidRequest, reasonOrStatus(reason, status))
	}

	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", docstore.ErrUnavailable, reasonOrStatus(reason, status))
	}

	return fmt.Errorf("unexpected response status %d: %s", status, reason)
}

func reasonOrStatus(reason string, status int) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("status %d", status)
}
