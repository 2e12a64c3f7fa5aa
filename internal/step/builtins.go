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

// Built-in step type names.
const (
	TypeDBExtract            = "db.extract"
	TypeDBExecute            = "db.execute"
	TypeExcelFillTemplate    = "excel.fill_template"
	TypeExternalProcess      = "external.process"
	TypeArchiveCreateZip     = "archive.create_zip"
	TypeArchiveExtractZip    = "archive.extract_zip"
	TypeFileTransferUpload   = "file_transfer.upload"
	TypeFileTransferDownload = "file_transfer.download"
)

// RegisterBuiltins binds every built-in step type into r.
func RegisterBuiltins(r *Registry) {
	r.Register(TypeDBExtract, newDBExtract)
	r.Register(TypeDBExecute, newDBExecute)
	r.Register(TypeExcelFillTemplate, newExcelFillTemplate)
	r.Register(TypeExternalProcess, newExternalProcess)
	r.Register(TypeArchiveCreateZip, newArchiveCreateZip)
	r.Register(TypeArchiveExtractZip, newArchiveExtractZip)
	r.Register(TypeFileTransferUpload, newFileTransferUpload)
	r.Register(TypeFileTransferDownload, newFileTransferDownload)
}
