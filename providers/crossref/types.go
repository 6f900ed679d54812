package crossref

// WorksResponse ist die Top-Level-Struktur der CrossRef-API-Antwort.
type WorksResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []Work `json:"items"`
	} `json:"message"`
}

// Work repräsentiert einen einzelnen Kandidaten in der API-Antwort.
type Work struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	Type           string   `json:"type"`
	Author         []Author `json:"author"`
	ContainerTitle []string `json:"container-title"`
	Publisher      string   `json:"publisher"`
	Issue          string   `json:"issue"`
	Volume         string   `json:"volume"`
	Page           string   `json:"page"`
	ISSN           []string `json:"ISSN"`
	ISBN           []string `json:"ISBN"`
	Subject        []string `json:"subject"`
	Issued         Partial  `json:"issued"`
}

// Author ist ein Autorenname in family/given-Form.
type Author struct {
	Family string `json:"family"`
	Given  string `json:"given"`
}

// Partial ist ein CrossRef-Partial-Date: 1 bis 3 bekannte Komponenten
// (Jahr, optional Monat, optional Tag) als date-parts.
type Partial struct {
	DateParts [][]int `json:"date-parts"`
}

// BestTitle liefert den ersten Titel des Werks oder den Leerstring.
func (w *Work) BestTitle() string {
	if len(w.Title) == 0 {
		return ""
	}
	return w.Title[0]
}
