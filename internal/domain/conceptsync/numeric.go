package conceptsync

import (
	"math"
	"strings"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// applyNumeric copies units, decimal handling and tagged reference ranges
// from od onto n. Fields the definition does not carry are left as they are.
func applyNumeric(n *concept.NumericDetails, od *fhir.ObservationDefinition) {
	if qd := od.QuantitativeDetails; qd != nil {
		if unit := unitText(qd.Unit); unit != "" {
			n.Units = unit
		}
		allow := qd.DecimalPrecision == nil || *qd.DecimalPrecision != 0
		n.AllowDecimal = &allow
	}

	for _, qi := range od.QualifiedInterval {
		if qi.Range == nil {
			continue
		}
		tag, ok := qi.ExtensionValue(fhir.ReferenceRangeExtension)
		if !ok {
			continue
		}
		low, high := quantityValue(qi.Range.Low), quantityValue(qi.Range.High)
		switch strings.TrimSpace(tag) {
		case fhir.ReferenceRangeNormal:
			setBound(&n.LowNormal, low)
			setBound(&n.HiNormal, high)
		case fhir.ReferenceRangeTreatment:
			setBound(&n.LowCritical, low)
			setBound(&n.HiCritical, high)
		case fhir.ReferenceRangeAbsolute:
			setBound(&n.LowAbsolute, low)
			setBound(&n.HiAbsolute, high)
		}
	}
}

func unitText(cc *fhir.CodeableConcept) string {
	if cc == nil {
		return ""
	}
	if len(cc.Coding) > 0 && strings.TrimSpace(cc.Coding[0].Code) != "" {
		return strings.TrimSpace(cc.Coding[0].Code)
	}
	return strings.TrimSpace(cc.Text)
}

func quantityValue(q *fhir.Quantity) *float64 {
	if q == nil || q.Value == nil {
		return nil
	}
	v := *q.Value
	return &v
}

func setBound(dst **float64, v *float64) {
	if v != nil {
		*dst = v
	}
}

// numericDetails builds the quantitativeDetails block, or nil when the facet
// has nothing to say.
func numericDetails(n *concept.NumericDetails) *fhir.QuantitativeDetails {
	var qd fhir.QuantitativeDetails
	if units := strings.TrimSpace(n.Units); units != "" {
		qd.Unit = &fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: units, Display: units}},
			Text:   units,
		}
	}
	if !allowsDecimal(n) {
		zero := 0
		qd.DecimalPrecision = &zero
	}
	if qd.Unit == nil && qd.DecimalPrecision == nil {
		return nil
	}
	return &qd
}

// numericIntervals emits one tagged interval per bound pair that has at
// least one bound.
func numericIntervals(n *concept.NumericDetails) []fhir.QualifiedInterval {
	decimals := allowsDecimal(n)
	var out []fhir.QualifiedInterval
	add := func(low, high *float64, tag string) {
		if low == nil && high == nil {
			return
		}
		out = append(out, fhir.QualifiedInterval{
			Extension: []fhir.Extension{{URL: fhir.ReferenceRangeExtension, ValueCode: tag}},
			Range: &fhir.Range{
				Low:  boundQuantity(low, decimals),
				High: boundQuantity(high, decimals),
			},
		})
	}
	add(n.LowNormal, n.HiNormal, fhir.ReferenceRangeNormal)
	add(n.LowCritical, n.HiCritical, fhir.ReferenceRangeTreatment)
	add(n.LowAbsolute, n.HiAbsolute, fhir.ReferenceRangeAbsolute)
	return out
}

func boundQuantity(v *float64, decimals bool) *fhir.Quantity {
	if v == nil {
		return nil
	}
	val := *v
	if !decimals {
		val = math.Trunc(val)
	}
	return &fhir.Quantity{Value: &val}
}

func allowsDecimal(n *concept.NumericDetails) bool {
	return n.AllowDecimal == nil || *n.AllowDecimal
}
