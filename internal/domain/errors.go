package domain

import "errors"

// Analysis errors. All of them are terminal for the current attempt.
var (
	// ErrUnsupportedFormat is returned when the uploaded file type cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported statement format")

	// ErrClassification is returned when the classifier call itself fails
	// (network, auth, quota).
	ErrClassification = errors.New("classification failed")

	// ErrResponseParse is returned when the classifier answered with text
	// that is not JSON or does not match the response schema.
	ErrResponseParse = errors.New("classifier response could not be parsed")

	// ErrClassificationTimeout is returned when the classifier did not answer in time.
	ErrClassificationTimeout = errors.New("classification timed out")
)

// Session errors.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotAuthenticated   = errors.New("session is not authenticated")
	ErrNoCredits          = errors.New("no analysis credits left")
	ErrAnalysisInProgress = errors.New("an analysis is already in progress")

	// ErrBillingNotOwned is returned when a billing id was not created by
	// the session claiming it.
	ErrBillingNotOwned = errors.New("billing does not belong to this session")
)

// UserMessage returns the message shown to the user for an analysis error.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "Formato de arquivo não suportado. Envie um extrato em CSV, TXT, XLSX ou PDF."
	case errors.Is(err, ErrClassificationTimeout):
		return "A análise demorou mais do que o esperado. Tente novamente em instantes."
	case errors.Is(err, ErrResponseParse):
		return "Não foi possível interpretar a resposta da IA. Tente novamente com outro arquivo."
	case errors.Is(err, ErrClassification):
		return "Falha ao analisar o documento com IA. Verifique sua chave de API ou o formato do arquivo."
	case errors.Is(err, ErrNoCredits):
		return "Você não tem créditos de análise. Adquira mais créditos para continuar."
	case errors.Is(err, ErrNotAuthenticated):
		return "Faça login para analisar um extrato."
	case errors.Is(err, ErrAnalysisInProgress):
		return "Já existe uma análise em andamento. Aguarde a conclusão."
	case errors.Is(err, ErrBillingNotOwned):
		return "Pagamento não encontrado para esta sessão."
	case errors.Is(err, ErrSessionNotFound):
		return "Sessão expirada. Entre novamente."
	default:
		return "Erro desconhecido ao analisar arquivo."
	}
}
