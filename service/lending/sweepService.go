package lending

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vgnam/Library-Management-System/model"
	svcpenalty "github.com/vgnam/Library-Management-System/service/penalty"
	"github.com/vgnam/Library-Management-System/util/database"
)

// infractionAfterDays: an Active item this many days past due flips to
// Overdue and costs the reader one infraction. The flip is one-way, so the
// infraction cannot be charged twice.
const infractionAfterDays = 5

// Sweeper is the narrow surface the background loop needs.
type Sweeper interface {
	RunSweep(ctx context.Context) (*SweepReport, error)
}

type SweepReport struct {
	ItemsMarkedOverdue int `json:"items_marked_overdue"`
	InfractionsAdded   int `json:"infractions_added"`
	PenaltiesUpserted  int `json:"penalties_upserted"`
	ReadersEvaluated   int `json:"readers_evaluated"`
}

func (s *service) RunSweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		now := s.clock.Now()

		rows, err := s.loans.OpenItemsDueBeforeForUpdate(ctx, tx, now)
		if err != nil {
			return err
		}

		cards := map[string]*model.ReadingCard{}
		var affected []string
		seen := map[string]bool{}

		for _, d := range rows {
			if !seen[d.ReaderID] {
				seen[d.ReaderID] = true
				affected = append(affected, d.ReaderID)
			}

			days := svcpenalty.DaysOverdue(*d.DueDate, now)
			status := d.Status

			if status == model.ItemActive && days > infractionAfterDays {
				if err := s.loans.UpdateItemStatus(ctx, tx, d.ID, model.ItemOverdue); err != nil {
					return err
				}
				status = model.ItemOverdue
				report.ItemsMarkedOverdue++

				// One infraction per item, ever. The flag also covers items
				// charged outside the sweep.
				if !d.InfractionCharged {
					card := cards[d.ReaderID]
					if card == nil {
						card, err = s.cards.CardByReaderForUpdate(ctx, tx, d.ReaderID)
						if err != nil {
							return err
						}
						cards[d.ReaderID] = card
					}
					if _, err := s.cards.IncrementInfractions(ctx, tx, card.ID); err != nil {
						return err
					}
					if err := s.loans.MarkItemInfraction(ctx, tx, d.ID); err != nil {
						return err
					}
					report.InfractionsAdded++
				}
			}

			if status == model.ItemOverdue {
				rec := &model.PenaltyRecord{
					ID:            uuid.NewString(),
					ItemID:        d.ID,
					Kind:          model.PenaltyLate,
					Status:        model.PenaltyPending,
					DaysOverdue:   days,
					RatePerDay:    s.fees.LateRatePerDay,
					PriceSnapshot: d.Price,
					Description:   fmt.Sprintf("Late return: %d day(s) overdue", days),
					CreatedAt:     now,
				}
				if err := s.penalties.Upsert(ctx, tx, rec); err != nil {
					return err
				}
				report.PenaltiesUpserted++
			}
		}

		// Suspended readers with no remaining overdue rows recover here.
		suspended, err := s.cards.ReadersWithCardStatus(ctx, tx, model.CardSuspended)
		if err != nil {
			return err
		}
		for _, readerID := range suspended {
			if !seen[readerID] {
				seen[readerID] = true
				affected = append(affected, readerID)
			}
		}

		for _, readerID := range affected {
			if _, _, err := s.membership.Recompute(ctx, tx, readerID); err != nil {
				return err
			}
			report.ReadersEvaluated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sweep complete",
		"overdue", report.ItemsMarkedOverdue,
		"infractions", report.InfractionsAdded,
		"penalties", report.PenaltiesUpserted,
		"readers", report.ReadersEvaluated,
	)
	return report, nil
}
