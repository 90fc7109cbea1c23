package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// sourceField holds the full document as stored JSON. Bleve keeps no
// _source of its own, so partial updates and hit reconstruction read
// this field back instead of reassembling from indexed values.
const sourceField = "_source"

// buildImageMapping creates the Bleve mapping for image documents.
//
// Tag names use the keyword analyzer so compound names like "red_eyes"
// stay intact for exact filtering; the tags field is additionally
// indexed word-split (tagsText) so free-text queries match. Filenames
// use the simple analyzer, which splits on every non-letter and so
// breaks "sunset_beach_004.png" into searchable words.
func buildImageMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	// --- Keyword fields (exact match) ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	// Tags are indexed twice: keyword for exact term filters, and
	// word-split under tagsText for free-text matching.
	tagsFieldMapping := bleve.NewTextFieldMapping()
	tagsFieldMapping.Analyzer = keyword.Name
	tagsFieldMapping.Store = true
	tagsFieldMapping.IncludeTermVectors = true // For faceting

	tagsTextFieldMapping := bleve.NewTextFieldMapping()
	tagsTextFieldMapping.Name = "tagsText"
	tagsTextFieldMapping.Analyzer = simple.Name
	tagsTextFieldMapping.Store = false

	docMapping.AddFieldMappingsAt("tags", tagsFieldMapping, tagsTextFieldMapping)

	positiveFieldMapping := bleve.NewTextFieldMapping()
	positiveFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("positiveTags", positiveFieldMapping)

	negativeFieldMapping := bleve.NewTextFieldMapping()
	negativeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("negativeTags", negativeFieldMapping)

	userFieldMapping := bleve.NewTextFieldMapping()
	userFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("userTags", userFieldMapping)

	// --- Analyzed text fields ---

	filenameFieldMapping := bleve.NewTextFieldMapping()
	filenameFieldMapping.Analyzer = simple.Name
	filenameFieldMapping.Store = true
	filenameFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("filename", filenameFieldMapping)

	// --- Numeric fields for ranges and sort keys ---

	seedFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("seed", seedFieldMapping)

	widthFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("width", widthFieldMapping)

	heightFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("height", heightFieldMapping)

	createdAtFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("createdAt", createdAtFieldMapping)

	// --- Boolean fields (derivative state filters) ---

	losslessFieldMapping := bleve.NewBooleanFieldMapping()
	docMapping.AddFieldMappingsAt("hasLossless", losslessFieldMapping)

	sidecarFieldMapping := bleve.NewBooleanFieldMapping()
	docMapping.AddFieldMappingsAt("hasSidecar", sidecarFieldMapping)

	// Stored source for hit reconstruction and partial updates.
	docMapping.AddFieldMappingsAt(sourceField, buildSourceFieldMapping())

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// buildTagMapping creates the Bleve mapping for tag documents.
func buildTagMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	// Name stays a single keyword term so prefix queries can drive
	// autocomplete on the canonical form.
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = keyword.Name
	nameFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	// Tokenized form for word-level matching ("red eyes" -> red_eyes).
	tokenizedFieldMapping := bleve.NewTextFieldMapping()
	tokenizedFieldMapping.Analyzer = simple.Name
	tokenizedFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("tokenizedName", tokenizedFieldMapping)

	categoryFieldMapping := bleve.NewTextFieldMapping()
	categoryFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("category", categoryFieldMapping)

	countFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("count", countFieldMapping)

	docMapping.AddFieldMappingsAt(sourceField, buildSourceFieldMapping())

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// buildSourceFieldMapping stores the raw document JSON without
// indexing it.
func buildSourceFieldMapping() *mapping.FieldMapping {
	sourceFieldMapping := bleve.NewTextFieldMapping()
	sourceFieldMapping.Index = false
	sourceFieldMapping.Store = true
	sourceFieldMapping.IncludeInAll = false
	return sourceFieldMapping
}
