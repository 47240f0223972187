package web

// Service is one entry of the consulting catalogue on the landing page.
type Service struct {
	Slug         string
	Title        string
	Purpose      string
	Deliverables string
	Outcome      string
	Value        string
}

var catalogue = []Service{
	{
		Slug:         "ai-readiness",
		Title:        "AI Readiness Assessment",
		Purpose:      "Establish where your finance data, processes and teams stand before any AI investment.",
		Deliverables: "Data maturity scorecard, process heat map, prioritised use-case backlog and a 90-day roadmap.",
		Outcome:      "A board-ready view of which AI initiatives will pay back and which foundations come first.",
		Value:        "Avoids spend on pilots that stall on data quality or ownership gaps.",
	},
	{
		Slug:         "data-quality",
		Title:        "AI-Powered Data Quality",
		Purpose:      "Detect and explain anomalies across ledgers, plans and operational feeds before they reach reporting.",
		Deliverables: "Automated profiling, anomaly models tuned to your chart of accounts and an exceptions workflow.",
		Outcome:      "Fewer late adjustments and a close that starts from trusted numbers.",
		Value:        "Analysts spend their time on variance insight rather than data cleansing.",
	},
	{
		Slug:         "reconciliation",
		Title:        "Automated Reconciliation",
		Purpose:      "Replace spreadsheet matching between source systems, the ledger and planning models.",
		Deliverables: "Matching rules, tolerance policies, audit trail and reconciliation dashboards.",
		Outcome:      "Reconciliations that run continuously instead of at month end.",
		Value:        "Days removed from the close and a cleaner audit.",
	},
	{
		Slug:         "governance",
		Title:        "Real-time Governance",
		Purpose:      "Give finance leadership continuous visibility of controls, lineage and model changes.",
		Deliverables: "Control library, lineage mapping, change monitoring and alerting into existing channels.",
		Outcome:      "Issues surface as they happen with a clear owner.",
		Value:        "Lower compliance effort and fewer surprises at review time.",
	},
	{
		Slug:         "planning-platforms",
		Title:        "Anaplan & OneStream Integration",
		Purpose:      "Connect connected-planning and CPM platforms to the data and AI services around them.",
		Deliverables: "Integration architecture, data pipelines, model hygiene review and AI-assisted forecasting hooks.",
		Outcome:      "Planning models fed by reliable, timely data with AI augmenting the forecast.",
		Value:        "More value from the platform licences you already hold.",
	},
}

// Services returns the catalogue in display order.
func Services() []Service {
	return append([]Service(nil), catalogue...)
}
