package constants

// Common error messages
const (
	ErrInvalidRequestBody  = "Invalid request body"
	ErrMissingOperator     = "Missing operator identity"
	ErrInvalidID           = "Invalid transaction id"
	ErrInvalidStatementID  = "Invalid bank statement id"
	ErrInvalidPagination   = "Invalid pagination parameters"
	ErrFailedToReadUpload  = "Failed to read uploaded file"
	ErrUploadTooLarge      = "Upload exceeds the allowed size"
	ErrMissingStatementIDs = "bankStatementIds is required"
	ErrMethodNotAllowed    = "Method Not Allowed"
	ErrRouteNotFound       = "Route not found"
)

// Content Types
const (
	ContentTypeJSON      = "application/json"
	ContentTypeText      = "Content-Type"
	ContentTypeMultipart = "multipart/form-data"
	ContentTypeNDJSON    = "application/x-ndjson"
	ContentTypeCSV       = "text/csv; charset=utf-8"
)

// Operator headers injected by the upstream auth gateway.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

const (
	UploadFormField   = "files"
	UnmatchedCSVName  = "unmatched-transactions.csv"
	MultipartMemLimit = 32 << 20
)
