// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package step

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// excelFillTemplateStep implements type "excel.fill_template": opens a
// template workbook, writes cell values and/or row data into a sheet,
// and saves the result to output_path. Both paths are resolved through
// the run's sandbox (spec §4.3 "Sandbox").
type excelFillTemplateStep struct {
	id             string
	templatePath   string
	outputPath     string
	sheet          string
	cells          map[string]any
	rows           [][]any
	startCell      string
	overwrite      bool
}

func newExcelFillTemplate(id string, inputs map[string]any) (Step, error) {
	templatePath, err := requireString(inputs, "template_path")
	if err != nil {
		return nil, err
	}
	outputPath, err := requireString(inputs, "output_path")
	if err != nil {
		return nil, err
	}
	s := &excelFillTemplateStep{
		id:           id,
		templatePath: templatePath,
		outputPath:   outputPath,
		sheet:        optString(inputs, "sheet", ""),
		cells:        optStringMap(inputs, "cells"),
		startCell:    optString(inputs, "start_cell", "A1"),
		overwrite:    optBool(inputs, "overwrite", true),
	}
	if raw, ok := inputs["rows"]; ok {
		rawRows, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("excel.fill_template: input \"rows\" must be a list of lists")
		}
		for _, r := range rawRows {
			row, ok := r.([]any)
			if !ok {
				return nil, fmt.Errorf("excel.fill_template: input \"rows\" must be a list of lists")
			}
			s.rows = append(s.rows, row)
		}
	}
	return s, nil
}

func (s *excelFillTemplateStep) Validate() error {
	if s.templatePath == "" || s.outputPath == "" {
		return fmt.Errorf("excel.fill_template: template_path and output_path are required")
	}
	if len(s.cells) == 0 && len(s.rows) == 0 {
		return fmt.Errorf("excel.fill_template: at least one of cells or rows is required")
	}
	return nil
}

func (s *excelFillTemplateStep) Run(ctx *Context) (Result, error) {
	templatePath, err := ctx.Sandbox.Resolve(s.templatePath)
	if err != nil {
		return Result{}, err
	}
	outputPath, err := ctx.Sandbox.Resolve(s.outputPath)
	if err != nil {
		return Result{}, err
	}

	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return Result{}, fmt.Errorf("excel.fill_template: open %s: %w", templatePath, err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	written := 0
	for cellRef, value := range s.cells {
		if err := f.SetCellValue(sheet, cellRef, value); err != nil {
			return Result{}, fmt.Errorf("excel.fill_template: set cell %s: %w", cellRef, err)
		}
		written++
	}

	if len(s.rows) > 0 {
		startCol, startRow, err := excelize.CellNameToCoordinates(s.startCell)
		if err != nil {
			return Result{}, fmt.Errorf("excel.fill_template: invalid start_cell %q: %w", s.startCell, err)
		}
		for i, row := range s.rows {
			for j, value := range row {
				cellRef, err := excelize.CoordinatesToCellName(startCol+j, startRow+i)
				if err != nil {
					return Result{}, err
				}
				if err := f.SetCellValue(sheet, cellRef, value); err != nil {
					return Result{}, fmt.Errorf("excel.fill_template: set cell %s: %w", cellRef, err)
				}
				written++
			}
		}
	}

	if !s.overwrite {
		if _, err := os.Stat(outputPath); err == nil {
			return Result{}, fmt.Errorf("excel.fill_template: %s already exists and overwrite is false", outputPath)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return Result{}, fmt.Errorf("excel.fill_template: save %s: %w", outputPath, err)
	}

	return Result{Status: StatusSuccess, Output: map[string]any{
		"output_path":  outputPath,
		"sheet":        sheet,
		"cells_written": written,
	}}, nil
}
