package adapter

import (
	"github.com/thenexusengine/tne_medbridge/internal/mediation"
	"github.com/thenexusengine/tne_medbridge/internal/partner"
)

// codeMap is the static translation from Vantage error codes to the
// mediation taxonomy. Codes not listed here classify as the generic
// partner error; the mapping is total by construction.
var codeMap = map[partner.Code]mediation.ErrorCode{
	partner.CodeNetworkError:      mediation.ErrorCodeNetwork,
	partner.CodeNoFill:            mediation.ErrorCodeNoFill,
	partner.CodeLoadTooFrequently: mediation.ErrorCodeRateLimited,
	partner.CodeRequestTimeout:    mediation.ErrorCodeTimeout,
	partner.CodeServerError:       mediation.ErrorCodeServer,
	partner.CodeInternalError:     mediation.ErrorCodePartner,
	partner.CodeCacheFailure:      mediation.ErrorCodePartner,
	partner.CodeBidPayloadError:   mediation.ErrorCodeNoFill,
	partner.CodeNotInitialized:    mediation.ErrorCodeInitFailure,
	partner.CodeAdNotLoaded:       mediation.ErrorCodeAdNotReady,
}

// TranslateError converts a Vantage error code into a classified
// mediation error. Unknown codes fall back to the generic partner error
// rather than failing the translation.
func TranslateError(code partner.Code, message string) *mediation.AdError {
	mapped, ok := codeMap[code]
	if !ok {
		mapped = mediation.ErrorCodePartner
	}
	if message == "" {
		message = code.String()
	}
	return &mediation.AdError{
		Code:        mapped,
		Message:     message,
		PartnerCode: int(code),
	}
}
