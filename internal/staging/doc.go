// Package staging persists parser output between parsing and loading.
//
// Every source document under the docs root gets a pair of files under the
// staging root, mirroring its relative path:
//
//	FY2026/US_Army/p1_army.xlsx.parquet    rows or pages, Arrow/Parquet
//	FY2026/US_Army/p1_army.xlsx.meta.json  sidecar with provenance
//
// The sidecar records size, mtime, content hash, row and page counts, the
// FY columns present, any page-level extraction issues, the staging format
// and parser versions, and the parse error when there was one. NeedsRestaging
// compares it with the source file so unchanged documents are not parsed
// again. A file that failed to parse keeps only its sidecar, which always
// reports that restaging is needed.
//
// Budget line files store the fixed columns as strings and each FY column as
// a nullable float64. A top level _staging_meta.json summarizes the last
// StageAll run.
package staging
