// Package partner is the boundary to the Vantage ad network: its error
// code taxonomy, global settings, banner size buckets, and the per-format
// ad objects with their callback listeners.
package partner

import "fmt"

// Code is a Vantage error code as delivered on ad error callbacks and in
// render responses
type Code int

const (
	// CodeNetworkError indicates the device could not reach Vantage
	CodeNetworkError Code = 1000
	// CodeNoFill indicates Vantage had no ad to serve for the placement
	CodeNoFill Code = 1001
	// CodeLoadTooFrequently indicates the placement was requested faster
	// than Vantage allows
	CodeLoadTooFrequently Code = 1002
	// CodeRequestTimeout indicates the load exceeded Vantage's deadline
	CodeRequestTimeout Code = 1050
	// CodeServerError indicates a Vantage-side failure
	CodeServerError Code = 2000
	// CodeInternalError indicates an unspecified Vantage SDK failure
	CodeInternalError Code = 2001
	// CodeCacheFailure indicates the creative could not be cached
	CodeCacheFailure Code = 2002
	// CodeBidPayloadError indicates the bid payload was rejected
	// (malformed or expired)
	CodeBidPayloadError Code = 2100
	// CodeNotInitialized indicates the SDK was used before Initialize
	CodeNotInitialized Code = 7001
	// CodeAdNotLoaded indicates Show was called before the ad loaded
	CodeAdNotLoaded Code = 7002
)

func (c Code) String() string {
	switch c {
	case CodeNetworkError:
		return "network error"
	case CodeNoFill:
		return "no fill"
	case CodeLoadTooFrequently:
		return "load too frequently"
	case CodeRequestTimeout:
		return "request timeout"
	case CodeServerError:
		return "server error"
	case CodeInternalError:
		return "internal error"
	case CodeCacheFailure:
		return "cache failure"
	case CodeBidPayloadError:
		return "bid payload error"
	case CodeNotInitialized:
		return "not initialized"
	case CodeAdNotLoaded:
		return "ad not loaded"
	}
	return fmt.Sprintf("unknown code %d", int(c))
}
