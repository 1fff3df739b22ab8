package presenter

import (
	"PortDelta/internal/domain/models"
)

// Display holds the human readable amounts of a round.
type Display struct {
	Currency       string    `json:"currency"`
	ReferenceTotal string    `json:"reference_total"`
	CurrentTotal   string    `json:"current_total"`
	Delta          string    `json:"delta"`
	Treatment      Treatment `json:"treatment"`
}

// View is a ValuationMessage with its formatted amounts.
type View struct {
	models.ValuationMessage
	Display Display `json:"display"`
}

func Render(r *models.ValuationResult, f *Formatter, detail bool) View {
	return View{
		ValuationMessage: r.Message(detail),
		Display: Display{
			Currency:       f.Code(),
			ReferenceTotal: f.Format(r.ReferenceTotal),
			CurrentTotal:   f.Format(r.CurrentTotal),
			Delta:          f.Format(r.Delta),
			Treatment:      TreatmentOf(r.Delta),
		},
	}
}
