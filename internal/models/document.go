package models

// DocumentType is the fixed set of classifications a source document can get.
type DocumentType string

const (
	DocSalaryCertificate     DocumentType = "SALARY_CERTIFICATE"
	DocBankInterestStatement DocumentType = "BANK_INTEREST_STATEMENT"
	DocUnknown               DocumentType = "UNKNOWN"
)

// DocumentInput is a raw document handed to the pipeline: text already
// extracted upstream, plus an optional caller-supplied type hint.
type DocumentInput struct {
	Filename string       `json:"filename"`
	RawText  string       `json:"rawText"`
	TypeHint DocumentType `json:"typeHint,omitempty"`
}

// DocumentRecord is a classified document as persisted on the run.
type DocumentRecord struct {
	Filename   string       `json:"filename" firestore:"filename"`
	Type       DocumentType `json:"type" firestore:"type"`
	RawText    string       `json:"-" firestore:"rawText,omitempty"`
	Confidence float64      `json:"confidence" firestore:"confidence"`
	ViaModel   bool         `json:"viaModel" firestore:"viaModel"`
}
