package mpgs

import (
	"paygate/internal/payment/domain"
)

type apiOperation string

const (
	opCreateCheckoutSession apiOperation = "CREATE_CHECKOUT_SESSION"
	opPay                   apiOperation = "PAY"
	opAuthorize             apiOperation = "AUTHORIZE"
	opCapture               apiOperation = "CAPTURE"
	opRefund                apiOperation = "REFUND"
	opCheck3DSEnrollment    apiOperation = "CHECK_3DS_ENROLLMENT"
	opProcessACSResult      apiOperation = "PROCESS_ACS_RESULT"
)

type sessionRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

type checkoutSessionBody struct {
	APIOperation apiOperation        `json:"apiOperation"`
	Order        domain.OrderPayload `json:"order"`
	Interaction  domain.Interaction  `json:"interaction"`
	Customer     *domain.Customer    `json:"customer,omitempty"`
	Billing      *domain.Billing     `json:"billing,omitempty"`
	Shipping     *domain.Shipping    `json:"shipping,omitempty"`
}

type updateSessionBody struct {
	Order    domain.OrderPayload `json:"order"`
	Customer *domain.Customer    `json:"customer,omitempty"`
	Billing  *domain.Billing     `json:"billing,omitempty"`
	Shipping *domain.Shipping    `json:"shipping,omitempty"`
}

type sourceOfFunds struct {
	Type string `json:"type"`
}

type emvAuthentication struct {
	TransactionID string `json:"transactionId"`
}

type legacyAuthentication struct {
	AcsEci              string `json:"acsEci,omitempty"`
	AuthenticationToken string `json:"authenticationToken,omitempty"`
	PaResStatus         string `json:"paResStatus,omitempty"`
	VeResEnrolled       string `json:"veResEnrolled,omitempty"`
	XID                 string `json:"xid,omitempty"`
}

type paymentOrder struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

type paymentBody struct {
	APIOperation   apiOperation          `json:"apiOperation"`
	Order          paymentOrder          `json:"order"`
	Session        sessionRef            `json:"session"`
	SourceOfFunds  sourceOfFunds         `json:"sourceOfFunds"`
	Customer       *domain.Customer      `json:"customer,omitempty"`
	Billing        *domain.Billing       `json:"billing,omitempty"`
	Shipping       *domain.Shipping      `json:"shipping,omitempty"`
	ThreeDSecureID string                `json:"3DSecureId,omitempty"`
	ThreeDSecure   *legacyAuthentication `json:"3DSecure,omitempty"`
	Authentication *emvAuthentication    `json:"authentication,omitempty"`
}

type transactionAmount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type transactionBody struct {
	APIOperation apiOperation      `json:"apiOperation"`
	Transaction  transactionAmount `json:"transaction"`
}

type authenticationRedirectBody struct {
	ResponseURL        string `json:"responseUrl"`
	PageGenerationMode string `json:"pageGenerationMode"`
}

type enrollmentThreeDSecure struct {
	AuthenticationRedirect authenticationRedirectBody `json:"authenticationRedirect"`
}

type enrollmentBody struct {
	APIOperation apiOperation           `json:"apiOperation"`
	Order        paymentOrder           `json:"order"`
	Session      sessionRef             `json:"session"`
	ThreeDSecure enrollmentThreeDSecure `json:"3DSecure"`
}

type acsResultBody struct {
	APIOperation apiOperation `json:"apiOperation"`
	ThreeDSecure struct {
		PaRes string `json:"paRes"`
	} `json:"3DSecure"`
}

type tokenBody struct {
	Session       sessionRef    `json:"session"`
	SourceOfFunds sourceOfFunds `json:"sourceOfFunds"`
}

// errorBody is the gateway's error envelope, returned with result ERROR.
type errorBody struct {
	Result domain.Result `json:"result"`
	Error  struct {
		Cause          string `json:"cause"`
		Explanation    string `json:"explanation"`
		Field          string `json:"field,omitempty"`
		ValidationType string `json:"validationType,omitempty"`
	} `json:"error"`
}

type sessionResponse struct {
	Result           domain.Result `json:"result"`
	Session          sessionRef    `json:"session"`
	SuccessIndicator string        `json:"successIndicator"`
}

type enrollmentResponse struct {
	ThreeDSecureID string `json:"3DSecureId"`
	Response       struct {
		GatewayRecommendation domain.GatewayRecommendation `json:"gatewayRecommendation"`
	} `json:"response"`
	ThreeDSecure struct {
		AuthenticationRedirect struct {
			Customized struct {
				ACSUrl string `json:"acsUrl"`
				PaReq  string `json:"paReq"`
			} `json:"customized"`
		} `json:"authenticationRedirect"`
		VeResEnrolled string `json:"veResEnrolled"`
	} `json:"3DSecure"`
}

type acsResultResponse struct {
	ThreeDSecureID string `json:"3DSecureId"`
	Response       struct {
		GatewayRecommendation domain.GatewayRecommendation `json:"gatewayRecommendation"`
	} `json:"response"`
	ThreeDSecure struct {
		AcsEci              string `json:"acsEci"`
		AuthenticationToken string `json:"authenticationToken"`
		PaResStatus         string `json:"paResStatus"`
		VeResEnrolled       string `json:"veResEnrolled"`
		XID                 string `json:"xid"`
	} `json:"3DSecure"`
}

type tokenResponse struct {
	Result        domain.Result `json:"result"`
	Token         string        `json:"token"`
	SourceOfFunds struct {
		Provided struct {
			Card struct {
				Brand         string `json:"brand"`
				Number        string `json:"number"`
				Expiry        string `json:"expiry"`
				FundingMethod string `json:"fundingMethod"`
			} `json:"card"`
		} `json:"provided"`
	} `json:"sourceOfFunds"`
}
