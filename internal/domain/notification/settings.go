package notification

// Settings are the per-channel notification toggles stored by the backend.
type Settings struct {
	PushEnabled bool `json:"pushEnabled"`
	Calendar    bool `json:"calendar"`
	Email       bool `json:"email"`
	Operation   bool `json:"operation"`
	Task        bool `json:"task"`
	Payment     bool `json:"payment"`
	Invoice     bool `json:"invoice"`
	Expense     bool `json:"expense"`
}

// Enabled reports whether notifications of the given type are switched on.
// TypeOther has no toggle of its own and is always enabled.
func (s Settings) Enabled(t Type) bool {
	switch t {
	case TypeCalendar:
		return s.Calendar
	case TypeEmail:
		return s.Email
	case TypeOperation:
		return s.Operation
	case TypeTask:
		return s.Task
	case TypePayment:
		return s.Payment
	case TypeInvoice:
		return s.Invoice
	case TypeExpense:
		return s.Expense
	default:
		return true
	}
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	PushEnabled *bool `json:"pushEnabled,omitempty"`
	Calendar    *bool `json:"calendar,omitempty"`
	Email       *bool `json:"email,omitempty"`
	Operation   *bool `json:"operation,omitempty"`
	Task        *bool `json:"task,omitempty"`
	Payment     *bool `json:"payment,omitempty"`
	Invoice     *bool `json:"invoice,omitempty"`
	Expense     *bool `json:"expense,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.PushEnabled == nil && p.Calendar == nil && p.Email == nil &&
		p.Operation == nil && p.Task == nil && p.Payment == nil &&
		p.Invoice == nil && p.Expense == nil
}

// Apply returns s with the non-nil fields of p applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.PushEnabled, p.PushEnabled)
	set(&s.Calendar, p.Calendar)
	set(&s.Email, p.Email)
	set(&s.Operation, p.Operation)
	set(&s.Task, p.Task)
	set(&s.Payment, p.Payment)
	set(&s.Invoice, p.Invoice)
	set(&s.Expense, p.Expense)
	return s
}
