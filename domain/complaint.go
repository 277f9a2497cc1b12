package domain

// Status is the workflow state of a complaint. The set is closed; records
// carrying anything else are treated as legacy and dropped from board views.
type Status string

const (
	StatusPendente  Status = "PENDENTE"
	StatusEmAnalise Status = "EM_ANALISE"
	StatusResolvida Status = "RESOLVIDA"
	StatusRejeitada Status = "REJEITADA"
)

// Urgency of a complaint as reported by the resident.
type Urgency string

const (
	UrgencyBaixa Urgency = "BAIXA"
	UrgencyMedia Urgency = "MEDIA"
	UrgencyAlta  Urgency = "ALTA"
)

// Complaint represents a single resident complaint in the read model.
// AuthorID is empty when the complaint is anonymous; masking for
// non-privileged readers happens in the CRUD service, not here.
type Complaint struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Urgency     Urgency `json:"urgency"`
	Status      Status  `json:"status"`
	Anonymous   bool    `json:"anonymous,omitempty"`
	AuthorID    string  `json:"authorId,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt,omitempty"`
}
