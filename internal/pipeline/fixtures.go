package pipeline

import (
	"context"
	"time"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/idhash"
	"firm-panel-lab/internal/storage"
)

// fixtureLoadedAt pins fixture timestamps so repeated loads are identical.
const fixtureLoadedAt = 1700000000000

// LoadFixtures populates stores with a small demonstration panel: three firms
// covering an uninterrupted run, a reporting gap, a semi-identical duplicate
// pair and a conflicting duplicate pair, plus shock announcements and patent
// grants that overlap the firms' quarter windows.
func LoadFixtures(
	ctx context.Context,
	rawStore storage.RawRecordStore,
	shockStore storage.ShockEventStore,
	patentStore storage.PatentGrantStore,
) error {
	if err := loadRawRecords(ctx, rawStore); err != nil {
		return err
	}

	if err := loadShockEvents(ctx, shockStore); err != nil {
		return err
	}

	if err := loadPatentGrants(ctx, patentStore); err != nil {
		return err
	}

	return nil
}

func f64(v float64) *float64 { return &v }

// rawRecord builds one fixture observation with its ID derived the same way
// ingestion derives it.
func rawRecord(
	gvkey string, date time.Time, fy, fq int, label, sic string,
	fields domain.AccountingFields, line int,
) *domain.RawAccountingRecord {
	return &domain.RawAccountingRecord{
		RecordID:        idhash.ComputeRecordID(gvkey, date, line),
		GVKey:           gvkey,
		ReportDate:      date,
		FiscalYear:      fy,
		FiscalQuarter:   fq,
		ReportedQuarter: label,
		SIC:             sic,
		Fields:          fields,
		SourceLine:      line,
		LoadedAt:        fixtureLoadedAt,
	}
}

func loadRawRecords(ctx context.Context, store storage.RawRecordStore) error {
	records := make([]*domain.RawAccountingRecord, 0, 18)

	// Firm A: eight uninterrupted calendar quarters, 1999Q1 through 2000Q4.
	// One run, every lag genuine from the second quarter on.
	firmADates := []time.Time{
		calendar.Date(1999, time.March, 31),
		calendar.Date(1999, time.June, 30),
		calendar.Date(1999, time.September, 30),
		calendar.Date(1999, time.December, 31),
		calendar.Date(2000, time.March, 31),
		calendar.Date(2000, time.June, 30),
		calendar.Date(2000, time.September, 30),
		calendar.Date(2000, time.December, 31),
	}
	for i, date := range firmADates {
		fi := float64(i)
		records = append(records, rawRecord(
			"001000", date, date.Year(), i%4+1,
			calendar.QuarterLabel(date).Coarse(), "3674",
			domain.AccountingFields{
				ATQ:    f64(100 + 5*fi),
				CHEQ:   f64(10 + fi),
				DLCQ:   f64(5),
				DLTTQ:  f64(30 + fi),
				SALEQ:  f64(25 + 2*fi),
				IBQ:    f64(2 + 0.25*fi),
				DPQ:    f64(3),
				PPENTQ: f64(40 + 3*fi),
				XRDQ:   f64(4 + 0.5*fi),
			}, i+1))
	}

	// Firm B: two quarters, a nine-month reporting gap, then two more.
	// The gap splits the firm into two runs of two.
	firmBDates := []time.Time{
		calendar.Date(2001, time.March, 31),
		calendar.Date(2001, time.June, 30),
		calendar.Date(2002, time.March, 31),
		calendar.Date(2002, time.June, 30),
	}
	for i, date := range firmBDates {
		fi := float64(i)
		records = append(records, rawRecord(
			"002000", date, date.Year(), 1+i%2,
			calendar.QuarterLabel(date).Coarse(), "2834",
			domain.AccountingFields{
				ATQ:    f64(200 + 10*fi),
				CHEQ:   f64(30 + 2*fi),
				DLCQ:   f64(12),
				DLTTQ:  f64(60 + fi),
				SALEQ:  f64(80 + 4*fi),
				IBQ:    f64(6 + 0.5*fi),
				DPQ:    f64(5),
				PPENTQ: f64(90 + 2*fi),
				XRDQ:   f64(11 + fi),
			}, 9+i))
	}

	// Firm C: four quarters of 2003 with both duplicate shapes. The
	// 2003-06-30 pair is semi-identical and coalesces; the 2003-09-30 pair
	// conflicts on atq and is resolved by the calendar-label tiebreak.
	records = append(records,
		rawRecord("003000", calendar.Date(2003, time.March, 31), 2003, 1, "2003Q1", "7372",
			domain.AccountingFields{
				ATQ: f64(145), CHEQ: f64(18), DLCQ: f64(8), DLTTQ: f64(38),
				SALEQ: f64(55), IBQ: f64(4.5), DPQ: f64(4), PPENTQ: f64(52), XRDQ: f64(7),
			}, 13),
		// Semi-identical pair: identical where both report, line 15 adds xrdq.
		rawRecord("003000", calendar.Date(2003, time.June, 30), 2003, 2, "2003Q2", "7372",
			domain.AccountingFields{
				ATQ: f64(150), CHEQ: f64(20), DLCQ: f64(8), DLTTQ: f64(40),
				SALEQ: f64(60), IBQ: f64(5), DPQ: f64(4), PPENTQ: f64(55),
			}, 14),
		rawRecord("003000", calendar.Date(2003, time.June, 30), 2003, 2, "2003Q2", "7372",
			domain.AccountingFields{
				ATQ: f64(150), CHEQ: f64(20), DLCQ: f64(8), DLTTQ: f64(40),
				SALEQ: f64(60), IBQ: f64(5), DPQ: f64(4), PPENTQ: f64(55), XRDQ: f64(7.5),
			}, 15),
		// Conflicting pair: atq disagrees, only line 16 carries the label
		// matching a September quarter end.
		rawRecord("003000", calendar.Date(2003, time.September, 30), 2003, 3, "2003Q3", "7372",
			domain.AccountingFields{
				ATQ: f64(155), CHEQ: f64(22), DLCQ: f64(8), DLTTQ: f64(42),
				SALEQ: f64(63), IBQ: f64(5.5), DPQ: f64(4), PPENTQ: f64(57), XRDQ: f64(8),
			}, 16),
		rawRecord("003000", calendar.Date(2003, time.September, 30), 2003, 2, "2003Q2", "7372",
			domain.AccountingFields{
				ATQ: f64(255), CHEQ: f64(22), DLCQ: f64(8), DLTTQ: f64(42),
				SALEQ: f64(63), IBQ: f64(5.5), DPQ: f64(4), PPENTQ: f64(57), XRDQ: f64(8),
			}, 17),
		rawRecord("003000", calendar.Date(2003, time.December, 31), 2003, 4, "2003Q4", "7372",
			domain.AccountingFields{
				ATQ: f64(160), CHEQ: f64(24), DLCQ: f64(8), DLTTQ: f64(44),
				SALEQ: f64(66), IBQ: f64(6), DPQ: f64(4), PPENTQ: f64(60), XRDQ: f64(8.5),
			}, 18),
	)

	return store.InsertBulk(ctx, records)
}

func loadShockEvents(ctx context.Context, store storage.ShockEventStore) error {
	// FOMC announcement instants, 18:15 UTC on the decision day. The
	// 1999-06-30 announcement lands inside the window of the quarter ending
	// that same day.
	announcements := []struct {
		date     time.Time
		surprise float64
	}{
		{calendar.Date(1999, time.May, 18), 5.2},
		{calendar.Date(1999, time.June, 30), -3.1},
		{calendar.Date(1999, time.August, 24), 4.8},
		{calendar.Date(1999, time.November, 16), 2.5},
		{calendar.Date(2000, time.February, 2), 6.0},
		{calendar.Date(2000, time.March, 21), 3.2},
		{calendar.Date(2000, time.May, 16), 8.1},
	}

	events := make([]*domain.ShockEvent, 0, len(announcements))
	for _, a := range announcements {
		at := a.date.Add(18*time.Hour + 15*time.Minute).UnixMilli()
		events = append(events, &domain.ShockEvent{
			EventID:       idhash.ComputeShockID("ffr_surprise", at),
			Series:        "ffr_surprise",
			AnnouncedAtMs: at,
			Surprise:      a.surprise,
			CreatedAt:     fixtureLoadedAt,
		})
	}
	return store.InsertBulk(ctx, events)
}

func loadPatentGrants(ctx context.Context, store storage.PatentGrantStore) error {
	grants := []*domain.PatentGrant{
		// Firm A: two grants inside the quarter ending 1999-06-30, one each
		// in two later quarters. Value is present only where the source
		// priced the grant.
		{
			PatentID:    "US5914893",
			GVKey:       "001000",
			GrantedAtMs: calendar.Date(1999, time.June, 8).UnixMilli(),
			Value:       f64(3.4),
			CreatedAt:   fixtureLoadedAt,
		},
		{
			PatentID:    "US5926393",
			GVKey:       "001000",
			GrantedAtMs: calendar.Date(1999, time.June, 22).UnixMilli(),
			CreatedAt:   fixtureLoadedAt,
		},
		{
			PatentID:    "US5977102",
			GVKey:       "001000",
			GrantedAtMs: calendar.Date(1999, time.November, 2).UnixMilli(),
			Value:       f64(1.8),
			CreatedAt:   fixtureLoadedAt,
		},
		{
			PatentID:    "US6087651",
			GVKey:       "001000",
			GrantedAtMs: calendar.Date(2000, time.July, 11).UnixMilli(),
			CreatedAt:   fixtureLoadedAt,
		},
		// Firm B: one grant during the reporting gap, outside every
		// quarter-endpoint window.
		{
			PatentID:    "US6320101",
			GVKey:       "002000",
			GrantedAtMs: calendar.Date(2001, time.October, 9).UnixMilli(),
			Value:       f64(0.9),
			CreatedAt:   fixtureLoadedAt,
		},
	}
	return store.InsertBulk(ctx, grants)
}
