// routes/export.go
package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/LilVoxy/rental_warehouse/ETL/archive"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

const (
	runSheet     = "Run"
	qualitySheet = "Quality"
	phasesSheet  = "Phases"
)

// archivedPhases часть архивного отчета, попадающая в выгрузку
type archivedPhases struct {
	Phases []struct {
		Phase   string  `json:"phase"`
		State   string  `json:"state"`
		Seconds float64 `json:"seconds"`
	} `json:"phases"`
}

// buildRunWorkbook формирует книгу Excel по запуску: сводка, проверки качества, фазы
func buildRunWorkbook(run *models.RunRecord, checks []models.QualityCheck, report json.RawMessage) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", runSheet); err != nil {
		return nil, err
	}

	ended := ""
	if run.EndedAt != nil {
		ended = run.EndedAt.Format("2006-01-02 15:04:05")
	}
	summary := [][]interface{}{
		{"ID", run.ID},
		{"Process", run.Process},
		{"Status", string(run.Status)},
		{"Started", run.StartedAt.Format("2006-01-02 15:04:05")},
		{"Ended", ended},
		{"Rows read", run.RowsRead},
		{"Rows written", run.RowsWritten},
		{"Rows errored", run.RowsErrored},
		{"Duration, s", run.DurationSeconds},
		{"Error", run.ErrorMessage},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(runSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(qualitySheet); err != nil {
		return nil, err
	}
	header := []interface{}{"Check", "Source", "Target", "Result", "Expected", "Observed", "Message"}
	if err := f.SetSheetRow(qualitySheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, c := range checks {
		row := []interface{}{c.Check, c.SourceTable, c.TargetTable, string(c.Result), c.Expected, c.Observed, c.Message}
		if err := f.SetSheetRow(qualitySheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	if report != nil {
		var parsed archivedPhases
		if err := json.Unmarshal(report, &parsed); err != nil {
			return nil, fmt.Errorf("ошибка разбора отчета: %w", err)
		}
		if _, err := f.NewSheet(phasesSheet); err != nil {
			return nil, err
		}
		header := []interface{}{"Phase", "State", "Seconds"}
		if err := f.SetSheetRow(phasesSheet, "A1", &header); err != nil {
			return nil, err
		}
		for i, p := range parsed.Phases {
			row := []interface{}{p.Phase, p.State, p.Seconds}
			if err := f.SetSheetRow(phasesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

// GetRunReportXLSX GET /api/runs/{id}/report.xlsx
func (h *Handlers) GetRunReportXLSX(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный ID запуска"})
		return
	}

	run, err := h.store.Run(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	checks, err := h.store.Audit(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Отчета может не быть у запусков без архива
	report, _, err := h.store.Report(id)
	if err != nil && !errors.Is(err, archive.ErrReportNotFound) {
		h.writeError(w, r, err)
		return
	}

	f, err := buildRunWorkbook(run, checks, report)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=run_%d.xlsx", id))
	if err := f.Write(w); err != nil {
		h.logger.Error("Ошибка при записи файла Excel: %v", err)
	}
}
