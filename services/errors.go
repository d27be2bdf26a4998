package services

// ServiceError is returned by the service layer and consumed directly by
// controllers. Code carries a machine-readable condition for the cases the
// HTTP message deliberately keeps generic.
type ServiceError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *ServiceError) Error() string {
	return e.Message
}

const (
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodePaymentDeclined     = "PAYMENT_DECLINED"
	CodeGatewayError        = "GATEWAY_ERROR"
	CodeCheckoutInProgress  = "CHECKOUT_IN_PROGRESS"
	CodeCapturedNotRecorded = "PAYMENT_CAPTURED_ORDER_NOT_RECORDED"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
)
