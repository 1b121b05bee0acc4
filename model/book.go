// model/book.go
package model

// RareCategory marks titles restricted to VIP cards.
const RareCategory = "Rare"

type BookTitle struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

func (t BookTitle) Rare() bool { return t.Category == RareCategory }

type CopyCondition string

const (
	CopyGood    CopyCondition = "good"
	CopyDamaged CopyCondition = "damaged"
	CopyLost    CopyCondition = "lost"
)

type BookCopy struct {
	ID        string        `json:"id"`
	TitleID   string        `json:"title_id"`
	Condition CopyCondition `json:"condition"`
	OnLoan    bool          `json:"on_loan"`
}
