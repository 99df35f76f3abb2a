package ontology

// DefaultTables returns a fresh copy of the built-in clinical tables.
func DefaultTables() Tables {
	return Tables{
		MedicationTreats: map[string][]string{
			"metformin":           {"diabetes", "type 2 diabetes", "t2dm", "hyperglycemia"},
			"lisinopril":          {"hypertension", "high blood pressure", "htn", "heart failure"},
			"atorvastatin":        {"hyperlipidemia", "high cholesterol", "dyslipidemia", "cardiovascular"},
			"simvastatin":         {"hyperlipidemia", "high cholesterol", "dyslipidemia"},
			"levothyroxine":       {"hypothyroidism", "thyroid"},
			"omeprazole":          {"gerd", "acid reflux", "gastroesophageal reflux", "gastritis"},
			"pantoprazole":        {"gerd", "acid reflux", "peptic ulcer"},
			"albuterol":           {"asthma", "copd", "bronchospasm"},
			"salbutamol":          {"asthma", "copd", "bronchospasm"},
			"warfarin":            {"atrial fibrillation", "dvt", "pulmonary embolism", "blood clot"},
			"apixaban":            {"atrial fibrillation", "dvt", "pulmonary embolism"},
			"insulin":             {"diabetes", "type 1 diabetes", "type 2 diabetes", "t1dm", "t2dm"},
			"amlodipine":          {"hypertension", "angina", "coronary artery disease"},
			"losartan":            {"hypertension", "heart failure", "kidney disease"},
			"aspirin":             {"cardiovascular disease", "coronary artery disease", "stroke prevention"},
			"metoprolol":          {"hypertension", "heart failure", "atrial fibrillation", "angina"},
			"furosemide":          {"heart failure", "edema", "hypertension"},
			"prednisone":          {"asthma", "copd", "autoimmune", "inflammation", "allergy"},
			"amoxicillin":         {"infection", "pneumonia", "sinusitis", "otitis"},
			"azithromycin":        {"infection", "pneumonia", "sinusitis"},
			"sertraline":          {"depression", "anxiety", "ocd", "ptsd"},
			"fluoxetine":          {"depression", "anxiety", "ocd"},
			"methotrexate":        {"rheumatoid arthritis", "psoriasis", "autoimmune"},
			"gabapentin":          {"neuropathy", "epilepsy", "seizure", "pain"},
			"pregabalin":          {"neuropathy", "fibromyalgia", "epilepsy"},
			"hydrochlorothiazide": {"hypertension", "edema", "heart failure"},
		},
		LabMonitors: map[string][]string{
			"hba1c":           {"diabetes", "type 2 diabetes", "t2dm", "hyperglycemia"},
			"a1c":             {"diabetes", "type 2 diabetes", "t2dm"},
			"glucose":         {"diabetes", "hyperglycemia", "hypoglycemia"},
			"fasting glucose": {"diabetes", "hyperglycemia"},
			"tsh":             {"hypothyroidism", "hyperthyroidism", "thyroid disease"},
			"ldl":             {"hyperlipidemia", "cardiovascular disease", "high cholesterol"},
			"hdl":             {"hyperlipidemia", "cardiovascular disease"},
			"cholesterol":     {"hyperlipidemia", "cardiovascular disease", "high cholesterol"},
			"triglycerides":   {"hyperlipidemia", "metabolic syndrome"},
			"inr":             {"atrial fibrillation", "blood clot", "anticoagulation"},
			"pt":              {"anticoagulation", "liver disease"},
			"creatinine":      {"kidney disease", "renal failure", "ckd"},
			"egfr":            {"kidney disease", "renal failure", "ckd"},
			"bun":             {"kidney disease", "dehydration"},
			"alt":             {"liver disease", "hepatitis", "fatty liver"},
			"ast":             {"liver disease", "hepatitis"},
			"albumin":         {"liver disease", "malnutrition", "kidney disease"},
			"hemoglobin":      {"anemia", "blood disorder"},
			"hematocrit":      {"anemia", "blood disorder"},
			"wbc":             {"infection", "leukemia", "immune disorder"},
			"platelets":       {"thrombocytopenia", "bleeding disorder"},
			"sodium":          {"hyponatremia", "electrolyte imbalance", "heart failure"},
			"potassium":       {"hyperkalemia", "hypokalemia", "kidney disease"},
			"calcium":         {"hypercalcemia", "hypocalcemia", "parathyroid disease"},
			"vitamin d":       {"vitamin d deficiency", "osteoporosis"},
			"b12":             {"anemia", "neuropathy", "vitamin b12 deficiency"},
			"ferritin":        {"anemia", "iron deficiency", "hemochromatosis"},
			"psa":             {"prostate cancer", "benign prostatic hyperplasia"},
			"urine protein":   {"kidney disease", "nephrotic syndrome"},
		},
		LabAbnormalIndicates: map[string][]string{
			"hba1c":      {"uncontrolled diabetes", "diabetes"},
			"ldl":        {"cardiovascular risk", "hyperlipidemia"},
			"creatinine": {"kidney dysfunction", "ckd"},
			"hemoglobin": {"anemia"},
			"wbc":        {"infection", "inflammation"},
			"alt":        {"liver damage"},
			"ast":        {"liver damage", "cardiac damage"},
			"tsh":        {"thyroid dysfunction"},
		},
		Contraindications: map[string][]string{
			"amoxicillin":      {"penicillin", "beta lactam"},
			"ampicillin":       {"penicillin", "beta lactam"},
			"cephalexin":       {"cephalosporin", "beta lactam"},
			"aspirin":          {"nsaid", "salicylate", "peptic ulcer", "bleeding disorder"},
			"ibuprofen":        {"nsaid", "peptic ulcer", "kidney disease"},
			"naproxen":         {"nsaid", "peptic ulcer", "kidney disease"},
			"metformin":        {"kidney disease", "renal failure", "ckd"},
			"lisinopril":       {"ace inhibitor", "angioedema", "pregnancy"},
			"losartan":         {"pregnancy", "hyperkalemia"},
			"warfarin":         {"bleeding disorder", "peptic ulcer"},
			"apixaban":         {"bleeding disorder"},
			"azithromycin":     {"macrolide"},
			"sulfamethoxazole": {"sulfa", "sulfonamide"},
			"codeine":          {"opioid"},
			"morphine":         {"opioid"},
			"metoprolol":       {"asthma", "bradycardia"},
			"methotrexate":     {"pregnancy", "liver disease"},
			"atorvastatin":     {"liver disease"},
			"simvastatin":      {"liver disease"},
		},
		SeverityRanks: map[string]int{
			"mild":             1,
			"moderate":         2,
			"severe":           3,
			"critical":         4,
			"life-threatening": 4,
			"life threatening": 4,
		},
	}
}
