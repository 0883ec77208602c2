package script

import (
	"strconv"
	"strings"

	"github.com/juju/errors"

	"classdb/pkg/catalog/domain"
)

// ParseDomain reads a domain written as
//
//	integer | varchar(40) | numeric(12,2)    scalar kinds
//	set(integer, Shape) | sequence(Shape)    collections
//	Shape                                     object of a class
//	object                                    any object
//	self                                      the class being defined
//
// self becomes a placeholder domain naming class.
//
// In flow-style YAML ({name: x, domain: ...}) a comma ends the value, so
// collection domains with several elements must be quoted there:
// {name: parts, domain: "set(integer, Shape)"}. Block style needs no quotes.
func ParseDomain(text, class string) (*domain.Domain, error) {
	p := &domainParser{src: strings.TrimSpace(text), class: class}
	d, err := p.parse()
	if err != nil {
		return nil, errors.Annotatef(err, "domain %q", text)
	}
	if p.pos != len(p.src) {
		return nil, errors.NotValidf("domain %q: trailing %q", text, p.src[p.pos:])
	}
	return d, nil
}

type domainParser struct {
	src   string
	pos   int
	class string
}

func (p *domainParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *domainParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '(' || c == ')' || c == ',' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *domainParser) peek(c byte) bool {
	p.skipSpace()
	return p.pos < len(p.src) && p.src[p.pos] == c
}

func (p *domainParser) expect(c byte) error {
	if !p.peek(c) {
		return errors.NotValidf("expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *domainParser) parse() (*domain.Domain, error) {
	name := p.word()
	if name == "" {
		return nil, errors.NotValidf("empty domain")
	}
	switch strings.ToLower(name) {
	case "self":
		return domain.SelfReference(p.class), nil
	case "object":
		return &domain.Domain{Kind: domain.KindObject}, nil
	}

	kind, err := domain.ParseKind(name)
	if err != nil {
		return domain.Object(name), nil
	}

	if kind.IsCollection() {
		d := domain.Collection(kind)
		if !p.peek('(') {
			return d, nil
		}
		p.pos++
		for {
			elem, err := p.parse()
			if err != nil {
				return nil, err
			}
			d.Elements = append(d.Elements, elem)
			if !p.peek(',') {
				break
			}
			p.pos++
		}
		return d, p.expect(')')
	}

	d := domain.Scalar(kind)
	if !p.peek('(') {
		return d, nil
	}
	p.pos++
	if d.Precision, err = p.number(); err != nil {
		return nil, err
	}
	if p.peek(',') {
		p.pos++
		if d.Scale, err = p.number(); err != nil {
			return nil, err
		}
	}
	return d, p.expect(')')
}

func (p *domainParser) number() (int, error) {
	w := p.word()
	n, err := strconv.Atoi(w)
	if err != nil || n < 0 {
		return 0, errors.NotValidf("size %q", w)
	}
	return n, nil
}
