package xtce

import (
	"encoding/hex"
	"io"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/medley56/space-packet-parser/internal/bitstream"
)

// LoadXTCE builds an immutable packet definition from an XTCE document.
// The document is read as an opaque element tree; required elements are
// resolved and cross-references validated before the definition is
// returned.
func LoadXTCE(r io.Reader, logger *logrus.Logger) (*Definition, error) {
	if logger == nil {
		logger = logrus.New()
	}
	root, err := parseDocument(r)
	if err != nil {
		return nil, err
	}

	tm := root.child("TelemetryMetaData")
	if tm == nil {
		tm = root.findDescendant("TelemetryMetaData")
	}
	if tm == nil {
		return nil, defErrorf("document contains no TelemetryMetaData element")
	}

	def := &Definition{
		ParameterTypes:    make(map[string]ParameterType),
		Parameters:        make(map[string]*Parameter),
		Containers:        make(map[string]*SequenceContainer),
		RootContainerName: DefaultRootContainer,
	}

	if pts := tm.child("ParameterTypeSet"); pts != nil {
		for _, el := range pts.Children {
			pt, err := loadParameterType(el)
			if err != nil {
				return nil, err
			}
			if _, exists := def.ParameterTypes[pt.TypeName()]; exists {
				return nil, defErrorf("duplicate parameter type %q", pt.TypeName())
			}
			def.ParameterTypes[pt.TypeName()] = pt
		}
	}

	if ps := tm.child("ParameterSet"); ps != nil {
		for _, el := range ps.childrenNamed("Parameter") {
			name := el.attr("name")
			if name == "" {
				return nil, defErrorf("Parameter element without a name attribute")
			}
			typeRef := el.attr("parameterTypeRef")
			pt, ok := def.ParameterTypes[typeRef]
			if !ok {
				return nil, defErrorf("parameter %q references unknown parameter type %q", name, typeRef)
			}
			if _, exists := def.Parameters[name]; exists {
				return nil, defErrorf("duplicate parameter %q", name)
			}
			def.Parameters[name] = &Parameter{
				Name:             name,
				Type:             pt,
				ShortDescription: el.attr("shortDescription"),
			}
		}
	}

	cs := tm.child("ContainerSet")
	if cs == nil {
		return nil, defErrorf("document contains no ContainerSet element")
	}
	containerEls := cs.childrenNamed("SequenceContainer")

	// First pass creates shells so ContainerRefEntry and BaseContainer
	// may reference containers declared later in the document.
	var order []string
	for _, el := range containerEls {
		name := el.attr("name")
		if name == "" {
			return nil, defErrorf("SequenceContainer element without a name attribute")
		}
		if _, exists := def.Containers[name]; exists {
			return nil, defErrorf("duplicate sequence container %q", name)
		}
		def.Containers[name] = &SequenceContainer{
			Name:             name,
			Abstract:         el.attrBool("abstract", false),
			ShortDescription: el.attr("shortDescription"),
		}
		order = append(order, name)
	}

	for _, el := range containerEls {
		if err := fillContainer(def, def.Containers[el.attr("name")], el); err != nil {
			return nil, err
		}
	}

	def.linkInheritors(order)
	abstractLeaves, err := def.Validate()
	if err != nil {
		return nil, err
	}
	sort.Strings(abstractLeaves)
	for _, name := range abstractLeaves {
		logger.WithField("container", name).Warn(
			"Abstract container has no inheritors; packets reaching it will be unrecognized")
	}

	logger.WithFields(logrus.Fields{
		"parameter_types": len(def.ParameterTypes),
		"parameters":      len(def.Parameters),
		"containers":      len(def.Containers),
	}).Debug("Loaded XTCE definition")
	return def, nil
}

func fillContainer(def *Definition, c *SequenceContainer, el *node) error {
	if base := el.child("BaseContainer"); base != nil {
		ref := base.attr("containerRef")
		if _, ok := def.Containers[ref]; !ok {
			return defErrorf("container %q inherits unknown base container %q", c.Name, ref)
		}
		c.BaseContainerName = ref
		if rc := base.child("RestrictionCriteria"); rc != nil {
			criteria, err := loadMatchCriteria(rc)
			if err != nil {
				return err
			}
			c.RestrictionCriteria = criteria
		}
	}

	entryList := el.child("EntryList")
	if entryList == nil {
		return defErrorf("container %q has no EntryList", c.Name)
	}
	for _, entry := range entryList.Children {
		switch entry.Tag {
		case "ParameterRefEntry":
			ref := entry.attr("parameterRef")
			p, ok := def.Parameters[ref]
			if !ok {
				return defErrorf("container %q references unknown parameter %q", c.Name, ref)
			}
			c.Entries = append(c.Entries, Entry{Parameter: p})
		case "ContainerRefEntry":
			ref := entry.attr("containerRef")
			sub, ok := def.Containers[ref]
			if !ok {
				return defErrorf("container %q references unknown container %q", c.Name, ref)
			}
			c.Entries = append(c.Entries, Entry{Container: sub})
		default:
			return defErrorf("container %q has unsupported entry element %q", c.Name, entry.Tag)
		}
	}
	return nil
}

func loadParameterType(el *node) (ParameterType, error) {
	name := el.attr("name")
	if name == "" {
		return nil, defErrorf("%s element without a name attribute", el.Tag)
	}

	switch el.Tag {
	case "IntegerParameterType":
		enc, err := requireIntegerEncoding(el, name)
		if err != nil {
			return nil, err
		}
		return NewIntegerParameterType(name, unitOf(el), enc), nil

	case "FloatParameterType":
		enc, err := loadNumericEncoding(el, name)
		if err != nil {
			return nil, err
		}
		return NewFloatParameterType(name, unitOf(el), enc), nil

	case "EnumeratedParameterType":
		enc, err := requireIntegerEncoding(el, name)
		if err != nil {
			return nil, err
		}
		labels, err := loadEnumerationList(el, name)
		if err != nil {
			return nil, err
		}
		return NewEnumeratedParameterType(name, unitOf(el), enc, labels), nil

	case "StringParameterType":
		encEl := el.findDescendant("StringDataEncoding")
		if encEl == nil {
			return nil, defErrorf("string parameter type %q has no StringDataEncoding", name)
		}
		enc, err := loadStringEncoding(encEl, name)
		if err != nil {
			return nil, err
		}
		return NewStringParameterType(name, unitOf(el), enc), nil

	case "BinaryParameterType":
		encEl := el.findDescendant("BinaryDataEncoding")
		if encEl == nil {
			return nil, defErrorf("binary parameter type %q has no BinaryDataEncoding", name)
		}
		enc, err := loadBinaryEncoding(encEl, name)
		if err != nil {
			return nil, err
		}
		return NewBinaryParameterType(name, unitOf(el), enc), nil

	case "BooleanParameterType":
		enc, err := requireIntegerEncoding(el, name)
		if err != nil {
			return nil, err
		}
		return NewBooleanParameterType(name, unitOf(el), enc), nil

	case "AbsoluteTimeParameterType", "RelativeTimeParameterType":
		return loadTimeParameterType(el, name)

	default:
		return nil, defErrorf("unsupported parameter type element %q", el.Tag)
	}
}

// unitOf returns the text of the first UnitSet/Unit element. Compound
// units are out of scope; any further units are ignored.
func unitOf(el *node) string {
	if u := el.find("UnitSet/Unit"); u != nil {
		return u.text()
	}
	return ""
}

func requireIntegerEncoding(el *node, typeName string) (*IntegerDataEncoding, error) {
	encEl := el.findDescendant("IntegerDataEncoding")
	if encEl == nil {
		return nil, defErrorf("parameter type %q has no IntegerDataEncoding", typeName)
	}
	return loadIntegerEncoding(encEl, typeName)
}

// loadNumericEncoding accepts either float or integer encodings, the
// two raw layouts a float parameter may use.
func loadNumericEncoding(el *node, typeName string) (DataEncoding, error) {
	if encEl := el.findDescendant("FloatDataEncoding"); encEl != nil {
		return loadFloatEncoding(encEl, typeName)
	}
	if encEl := el.findDescendant("IntegerDataEncoding"); encEl != nil {
		return loadIntegerEncoding(encEl, typeName)
	}
	return nil, defErrorf("parameter type %q has no numeric data encoding", typeName)
}

func loadIntegerEncoding(el *node, typeName string) (*IntegerDataEncoding, error) {
	size, err := strconv.Atoi(el.attr("sizeInBits"))
	if err != nil || size <= 0 || size > 64 {
		return nil, defErrorf("parameter type %q has invalid integer sizeInBits %q", typeName, el.attr("sizeInBits"))
	}
	signedness, err := parseSignedness(el.attr("encoding"))
	if err != nil {
		return nil, defErrorf("parameter type %q: %v", typeName, err)
	}
	defCal, ctxCals, err := loadCalibrators(el)
	if err != nil {
		return nil, err
	}
	return &IntegerDataEncoding{
		SizeInBits:         size,
		Signedness:         signedness,
		LSBFirst:           el.attr("byteOrder") == "leastSignificantByteFirst",
		DefaultCalibrator:  defCal,
		ContextCalibrators: ctxCals,
	}, nil
}

func parseSignedness(s string) (bitstream.Signedness, error) {
	switch s {
	case "", "unsigned":
		return bitstream.Unsigned, nil
	// The XTCE spec spells it "twosCompliment"; accept the correct
	// spelling and the informal "signed" as well.
	case "signed", "twosComplement", "twosCompliment":
		return bitstream.TwosComplement, nil
	case "onesComplement", "onesCompliment":
		return bitstream.OnesComplement, nil
	case "signMagnitude":
		return bitstream.SignMagnitude, nil
	default:
		return 0, defErrorf("unsupported integer encoding %q", s)
	}
}

func loadFloatEncoding(el *node, typeName string) (*FloatDataEncoding, error) {
	size, err := strconv.Atoi(el.attr("sizeInBits"))
	if err != nil {
		return nil, defErrorf("parameter type %q has invalid float sizeInBits %q", typeName, el.attr("sizeInBits"))
	}
	if size != 16 && size != 32 && size != 64 {
		return nil, defErrorf("parameter type %q: IEEE 754 size must be 16, 32, or 64 bits, got %d", typeName, size)
	}
	switch enc := el.attr("encoding"); enc {
	case "", "IEEE754", "IEEE754_1985":
	default:
		return nil, defErrorf("parameter type %q: unsupported float encoding %q", typeName, enc)
	}
	defCal, ctxCals, err := loadCalibrators(el)
	if err != nil {
		return nil, err
	}
	return &FloatDataEncoding{
		SizeInBits:         size,
		LSBFirst:           el.attr("byteOrder") == "leastSignificantByteFirst",
		DefaultCalibrator:  defCal,
		ContextCalibrators: ctxCals,
	}, nil
}

func loadStringEncoding(el *node, typeName string) (*StringDataEncoding, error) {
	enc := &StringDataEncoding{Charset: bitstream.Charset(el.attr("encoding"))}
	if enc.Charset == "" {
		enc.Charset = bitstream.UTF8
	}

	var sizeEl *node
	if fixed := el.find("SizeInBits"); fixed != nil {
		sizeEl = fixed
		fv := fixed.find("Fixed/FixedValue")
		if fv == nil {
			return nil, defErrorf("string parameter type %q: SizeInBits requires Fixed/FixedValue", typeName)
		}
		bits, err := strconv.Atoi(fv.text())
		if err != nil || bits <= 0 {
			return nil, defErrorf("string parameter type %q has invalid fixed size %q", typeName, fv.text())
		}
		enc.FixedRawSizeBits = bits
	} else if variable := el.child("Variable"); variable != nil {
		sizeEl = variable
		switch {
		case variable.child("DynamicValue") != nil:
			dv, err := loadDynamicValue(variable.child("DynamicValue"))
			if err != nil {
				return nil, err
			}
			enc.DynamicLength = dv
		case variable.child("DiscreteLookupList") != nil:
			lookups, err := loadDiscreteLookupList(variable.child("DiscreteLookupList"))
			if err != nil {
				return nil, err
			}
			enc.LookupLength = lookups
		default:
			return nil, defErrorf("string parameter type %q: Variable requires DynamicValue or DiscreteLookupList", typeName)
		}
	}

	// Derived-string specifiers live under the size element when one
	// exists; a bare TerminationChar reads until the terminator.
	termParent := el
	if sizeEl != nil {
		termParent = sizeEl
	}
	if tc := termParent.child("TerminationChar"); tc != nil {
		raw, err := hex.DecodeString(tc.text())
		if err != nil || len(raw) == 0 {
			return nil, defErrorf("string parameter type %q has malformed termination character %q", typeName, tc.text())
		}
		if err := validateTerminator(raw, enc.Charset); err != nil {
			return nil, defErrorf("string parameter type %q: %v", typeName, err)
		}
		enc.TerminationChar = raw
	}
	if ls := termParent.child("LeadingSize"); ls != nil {
		bits, err := strconv.Atoi(ls.attr("sizeInBitsOfSizeTag"))
		if err != nil || bits <= 0 {
			return nil, defErrorf("string parameter type %q has invalid LeadingSize", typeName)
		}
		enc.LeadingSizeBits = bits
	}
	if enc.TerminationChar != nil && enc.LeadingSizeBits > 0 {
		return nil, defErrorf("string parameter type %q specifies both a termination character and a leading size", typeName)
	}
	if sizeEl == nil && enc.TerminationChar == nil {
		return nil, defErrorf("string parameter type %q specifies no length and no termination character", typeName)
	}
	return enc, nil
}

// validateTerminator requires the terminator to be exactly one
// character wide in the target charset: one byte for single-byte
// charsets, one 2-byte code unit for UTF-16.
func validateTerminator(term []byte, charset bitstream.Charset) error {
	want := 1
	if charset == bitstream.UTF16LE || charset == bitstream.UTF16BE {
		want = 2
	}
	if len(term) != want {
		return defErrorf("termination character %x must be %d byte(s) for charset %s", term, want, charset)
	}
	return nil
}

func loadBinaryEncoding(el *node, typeName string) (*BinaryDataEncoding, error) {
	size := el.child("SizeInBits")
	if size == nil {
		return nil, defErrorf("binary parameter type %q has no SizeInBits element", typeName)
	}
	if fv := size.child("FixedValue"); fv != nil {
		bits, err := strconv.Atoi(fv.text())
		if err != nil || bits <= 0 {
			return nil, defErrorf("binary parameter type %q has invalid fixed size %q", typeName, fv.text())
		}
		return &BinaryDataEncoding{FixedSizeBits: bits}, nil
	}
	if dv := size.child("DynamicValue"); dv != nil {
		d, err := loadDynamicValue(dv)
		if err != nil {
			return nil, err
		}
		return &BinaryDataEncoding{DynamicSize: d}, nil
	}
	if dl := size.child("DiscreteLookupList"); dl != nil {
		lookups, err := loadDiscreteLookupList(dl)
		if err != nil {
			return nil, err
		}
		return &BinaryDataEncoding{LookupSize: lookups}, nil
	}
	return nil, defErrorf("binary parameter type %q: SizeInBits requires FixedValue, DynamicValue, or DiscreteLookupList", typeName)
}

func loadDynamicValue(el *node) (*DynamicValue, error) {
	ref := el.child("ParameterInstanceRef")
	if ref == nil {
		return nil, defErrorf("DynamicValue requires a ParameterInstanceRef")
	}
	dv := &DynamicValue{
		ParameterRef:  ref.attr("parameterRef"),
		UseCalibrated: ref.attrBool("useCalibratedValue", true),
		Slope:         1,
	}
	if dv.ParameterRef == "" {
		return nil, defErrorf("ParameterInstanceRef without a parameterRef attribute")
	}
	if la := el.child("LinearAdjustment"); la != nil {
		dv.Slope, dv.Intercept = 0, 0
		if s := la.attr("slope"); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, defErrorf("invalid LinearAdjustment slope %q", s)
			}
			dv.Slope = f
		}
		if s := la.attr("intercept"); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, defErrorf("invalid LinearAdjustment intercept %q", s)
			}
			dv.Intercept = f
		}
	}
	return dv, nil
}

func loadDiscreteLookupList(el *node) ([]DiscreteLookup, error) {
	var out []DiscreteLookup
	for _, lu := range el.childrenNamed("DiscreteLookup") {
		value, err := strconv.ParseFloat(lu.attr("value"), 64)
		if err != nil {
			return nil, defErrorf("DiscreteLookup has invalid value %q", lu.attr("value"))
		}
		var criteria ComparisonList
		if cl := lu.child("ComparisonList"); cl != nil {
			criteria, err = loadComparisonList(cl)
		} else if c := lu.child("Comparison"); c != nil {
			var cmp *Comparison
			cmp, err = loadComparison(c)
			criteria = ComparisonList{cmp}
		} else {
			err = defErrorf("DiscreteLookup requires Comparison or ComparisonList")
		}
		if err != nil {
			return nil, err
		}
		out = append(out, DiscreteLookup{Criteria: criteria, Value: value})
	}
	if len(out) == 0 {
		return nil, defErrorf("DiscreteLookupList contains no DiscreteLookup elements")
	}
	return out, nil
}

func loadCalibrators(encEl *node) (Calibrator, []ContextCalibrator, error) {
	var defCal Calibrator
	if dc := encEl.child("DefaultCalibrator"); dc != nil {
		cal, err := loadCalibrator(dc)
		if err != nil {
			return nil, nil, err
		}
		defCal = cal
	}

	var ctxCals []ContextCalibrator
	if list := encEl.child("ContextCalibratorList"); list != nil {
		for _, ccEl := range list.childrenNamed("ContextCalibrator") {
			match := ccEl.child("ContextMatch")
			if match == nil {
				return nil, nil, defErrorf("ContextCalibrator requires a ContextMatch element")
			}
			criteria, err := loadMatchCriteria(match)
			if err != nil {
				return nil, nil, err
			}
			calEl := ccEl.child("Calibrator")
			if calEl == nil {
				return nil, nil, defErrorf("ContextCalibrator requires a Calibrator element")
			}
			cal, err := loadCalibrator(calEl)
			if err != nil {
				return nil, nil, err
			}
			ctxCals = append(ctxCals, ContextCalibrator{Criteria: criteria, Calibrator: cal})
		}
	}
	return defCal, ctxCals, nil
}

// loadCalibrator reads the single calibrator child of a
// DefaultCalibrator or Calibrator element.
func loadCalibrator(el *node) (Calibrator, error) {
	if poly := el.child("PolynomialCalibrator"); poly != nil {
		var terms []PolynomialTerm
		for _, term := range poly.childrenNamed("Term") {
			coeff, err := strconv.ParseFloat(term.attr("coefficient"), 64)
			if err != nil {
				return nil, defErrorf("polynomial term has invalid coefficient %q", term.attr("coefficient"))
			}
			exp, err := strconv.Atoi(term.attr("exponent"))
			if err != nil {
				return nil, defErrorf("polynomial term has invalid exponent %q", term.attr("exponent"))
			}
			terms = append(terms, PolynomialTerm{Coefficient: coeff, Exponent: exp})
		}
		if len(terms) == 0 {
			return nil, defErrorf("PolynomialCalibrator contains no Term elements")
		}
		return &PolynomialCalibrator{Terms: terms}, nil
	}

	if spline := el.child("SplineCalibrator"); spline != nil {
		order := 0
		if s := spline.attr("order"); s != "" {
			var err error
			order, err = strconv.Atoi(s)
			if err != nil {
				return nil, defErrorf("SplineCalibrator has invalid order %q", s)
			}
		}
		if order > 1 {
			return nil, defErrorf("spline calibrators of order %d are not supported (max 1)", order)
		}
		var points []SplinePoint
		for _, p := range spline.childrenNamed("SplinePoint") {
			raw, err1 := strconv.ParseFloat(p.attr("raw"), 64)
			cal, err2 := strconv.ParseFloat(p.attr("calibrated"), 64)
			if err1 != nil || err2 != nil {
				return nil, defErrorf("SplinePoint has invalid raw/calibrated attributes")
			}
			points = append(points, SplinePoint{Raw: raw, Calibrated: cal})
		}
		if len(points) < 2 {
			return nil, defErrorf("SplineCalibrator requires at least two points")
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Raw < points[j].Raw })
		return &SplineCalibrator{
			Order:       order,
			Extrapolate: spline.attrBool("extrapolate", false),
			Points:      points,
		}, nil
	}

	if el.child("MathOperationCalibrator") != nil {
		return nil, defErrorf("MathOperationCalibrator is not supported")
	}
	return nil, defErrorf("calibrator element contains no supported calibrator")
}

// loadMatchCriteria reads the criteria children of a RestrictionCriteria
// or ContextMatch element.
func loadMatchCriteria(el *node) (ComparisonList, error) {
	if el.child("CustomAlgorithm") != nil {
		return nil, defErrorf("CustomAlgorithm match criteria are not supported")
	}
	if cl := el.child("ComparisonList"); cl != nil {
		return loadComparisonList(cl)
	}
	if c := el.child("Comparison"); c != nil {
		cmp, err := loadComparison(c)
		if err != nil {
			return nil, err
		}
		return ComparisonList{cmp}, nil
	}
	if be := el.child("BooleanExpression"); be != nil {
		expr, err := loadBooleanExpression(be)
		if err != nil {
			return nil, err
		}
		return ComparisonList{expr}, nil
	}
	return nil, defErrorf("%s contains no Comparison, ComparisonList, or BooleanExpression", el.Tag)
}

func loadComparisonList(el *node) (ComparisonList, error) {
	var out ComparisonList
	for _, c := range el.childrenNamed("Comparison") {
		cmp, err := loadComparison(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cmp)
	}
	if len(out) == 0 {
		return nil, defErrorf("ComparisonList contains no Comparison elements")
	}
	return out, nil
}

func loadComparison(el *node) (*Comparison, error) {
	ref := el.attr("parameterRef")
	if ref == "" {
		return nil, defErrorf("Comparison without a parameterRef attribute")
	}
	opStr := el.attr("comparisonOperator")
	if opStr == "" {
		opStr = "=="
	}
	op, err := ParseOperator(opStr)
	if err != nil {
		return nil, err
	}
	return &Comparison{
		ParameterRef:  ref,
		Operator:      op,
		Value:         el.attr("value"),
		UseCalibrated: el.attrBool("useCalibratedValue", true),
	}, nil
}

func loadBooleanExpression(el *node) (*BooleanExpression, error) {
	if c := el.child("Condition"); c != nil {
		cond, err := loadCondition(c)
		if err != nil {
			return nil, err
		}
		return &BooleanExpression{Condition: cond}, nil
	}
	if a := el.child("ANDedConditions"); a != nil {
		anded, err := loadAnded(a)
		if err != nil {
			return nil, err
		}
		return &BooleanExpression{Anded: anded}, nil
	}
	if o := el.child("ORedConditions"); o != nil {
		ored, err := loadOred(o)
		if err != nil {
			return nil, err
		}
		return &BooleanExpression{Ored: ored}, nil
	}
	return nil, defErrorf("BooleanExpression contains no Condition, ANDedConditions, or ORedConditions")
}

func loadAnded(el *node) (*Anded, error) {
	out := &Anded{}
	for _, c := range el.childrenNamed("Condition") {
		cond, err := loadCondition(c)
		if err != nil {
			return nil, err
		}
		out.Conditions = append(out.Conditions, cond)
	}
	for _, o := range el.childrenNamed("ORedConditions") {
		ored, err := loadOred(o)
		if err != nil {
			return nil, err
		}
		out.Ors = append(out.Ors, ored)
	}
	return out, nil
}

func loadOred(el *node) (*Ored, error) {
	out := &Ored{}
	for _, c := range el.childrenNamed("Condition") {
		cond, err := loadCondition(c)
		if err != nil {
			return nil, err
		}
		out.Conditions = append(out.Conditions, cond)
	}
	for _, a := range el.childrenNamed("ANDedConditions") {
		anded, err := loadAnded(a)
		if err != nil {
			return nil, err
		}
		out.Ands = append(out.Ands, anded)
	}
	return out, nil
}

func loadCondition(el *node) (*Condition, error) {
	opEl := el.child("ComparisonOperator")
	if opEl == nil {
		return nil, defErrorf("Condition requires a ComparisonOperator element")
	}
	op, err := ParseOperator(opEl.text())
	if err != nil {
		return nil, err
	}
	refs := el.childrenNamed("ParameterInstanceRef")
	switch len(refs) {
	case 1:
		valueEl := el.child("Value")
		if valueEl == nil {
			return nil, defErrorf("Condition with one ParameterInstanceRef requires a Value element")
		}
		return &Condition{
			LeftParam:         refs[0].attr("parameterRef"),
			LeftUseCalibrated: refs[0].attrBool("useCalibratedValue", true),
			Operator:          op,
			RightValue:        valueEl.text(),
		}, nil
	case 2:
		return &Condition{
			LeftParam:          refs[0].attr("parameterRef"),
			LeftUseCalibrated:  refs[0].attrBool("useCalibratedValue", true),
			Operator:           op,
			RightParam:         refs[1].attr("parameterRef"),
			RightUseCalibrated: refs[1].attrBool("useCalibratedValue", true),
		}, nil
	default:
		return nil, defErrorf("Condition requires one or two ParameterInstanceRef elements, got %d", len(refs))
	}
}

func loadEnumerationList(el *node, typeName string) (map[int64]string, error) {
	list := el.child("EnumerationList")
	if list == nil {
		return nil, defErrorf("enumerated parameter type %q has no EnumerationList", typeName)
	}
	labels := make(map[int64]string)
	for _, e := range list.childrenNamed("Enumeration") {
		value, err := strconv.ParseInt(e.attr("value"), 10, 64)
		if err != nil {
			return nil, defErrorf("enumerated parameter type %q has non-integer enumeration value %q", typeName, e.attr("value"))
		}
		labels[value] = e.attr("label")
	}
	if len(labels) == 0 {
		return nil, defErrorf("enumerated parameter type %q has an empty EnumerationList", typeName)
	}
	return labels, nil
}

// loadTimeParameterType reads Absolute/RelativeTimeParameterType
// elements: an Encoding wrapper whose scale and offset attributes fold
// into a linear default calibrator, plus ReferenceTime metadata.
func loadTimeParameterType(el *node, name string) (ParameterType, error) {
	encWrapper := el.child("Encoding")
	if encWrapper == nil {
		return nil, defErrorf("time parameter type %q has no Encoding element", name)
	}
	enc, err := loadNumericEncoding(encWrapper, name)
	if err != nil {
		return nil, err
	}

	if cal := timeUnitCalibrator(encWrapper); cal != nil {
		switch e := enc.(type) {
		case *IntegerDataEncoding:
			e.DefaultCalibrator = cal
		case *FloatDataEncoding:
			e.DefaultCalibrator = cal
		}
	}

	unit := encWrapper.attr("units")
	var epoch, offsetFrom string
	if ep := el.find("ReferenceTime/Epoch"); ep != nil {
		epoch = ep.text()
	}
	if of := el.find("ReferenceTime/OffsetFrom"); of != nil {
		offsetFrom = of.attr("parameterRef")
	}

	if el.Tag == "AbsoluteTimeParameterType" {
		return NewAbsoluteTimeParameterType(name, unit, enc, epoch, offsetFrom), nil
	}
	return NewRelativeTimeParameterType(name, unit, enc, epoch, offsetFrom), nil
}

// timeUnitCalibrator converts scale/offset attributes on a time
// Encoding element into a polynomial calibrator.
func timeUnitCalibrator(encEl *node) *PolynomialCalibrator {
	var terms []PolynomialTerm
	if s := encEl.attr("offset"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			terms = append(terms, PolynomialTerm{Coefficient: f, Exponent: 0})
		}
	}
	if s := encEl.attr("scale"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			terms = append(terms, PolynomialTerm{Coefficient: f, Exponent: 1})
		}
	} else if len(terms) > 0 {
		terms = append(terms, PolynomialTerm{Coefficient: 1, Exponent: 1})
	}
	if len(terms) == 0 {
		return nil
	}
	return &PolynomialCalibrator{Terms: terms}
}
