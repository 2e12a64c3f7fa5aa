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

// Package mail implements the mail connector kind contract (spec §4.5)
// over github.com/wneessen/go-mail.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SendOptions carries the optional envelope fields (spec §4.5
// "send_plaintext(to, subject, body, *, from_addr?, cc?, bcc?)").
type SendOptions struct {
	FromAddr string
	CC       []string
	BCC      []string
}

// Mail is the kind contract every mail driver must satisfy (spec §4.5
// "mail" row).
type Mail interface {
	SendPlaintext(ctx context.Context, to []string, subject, body string, opts SendOptions) error
	SendHTML(ctx context.Context, to []string, subject, htmlBody string, opts SendOptions) error
	Close() error
}

// Config describes one SMTP endpoint, sourced from ResourceSpec.Config
// by the registry wiring in internal/connector/builtins.go.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	DefaultFrom string
	UseTLS      bool
}

type driver struct {
	client *gomail.Client
	from   string
}

// New builds a Mail connector backed by an SMTP client connection.
func New(cfg Config) (Mail, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}
	if cfg.User != "" {
		opts = append(opts, gomail.WithSMTPAuth(gomail.SMTPAuthPlain), gomail.WithUsername(cfg.User), gomail.WithPassword(cfg.Password))
	}
	if cfg.UseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: new client: %w", err)
	}

	return &driver{client: client, from: cfg.DefaultFrom}, nil
}

func (d *driver) build(to []string, subject, from string, cc, bcc []string) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if from == "" {
		from = d.from
	}
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("mail: from: %w", err)
	}
	if err := m.To(to...); err != nil {
		return nil, fmt.Errorf("mail: to: %w", err)
	}
	if len(cc) > 0 {
		if err := m.Cc(cc...); err != nil {
			return nil, fmt.Errorf("mail: cc: %w", err)
		}
	}
	if len(bcc) > 0 {
		if err := m.Bcc(bcc...); err != nil {
			return nil, fmt.Errorf("mail: bcc: %w", err)
		}
	}
	m.Subject(subject)
	return m, nil
}

func (d *driver) SendPlaintext(ctx context.Context, to []string, subject, body string, opts SendOptions) error {
	m, err := d.build(to, subject, opts.FromAddr, opts.CC, opts.BCC)
	if err != nil {
		return err
	}
	m.SetBodyString(gomail.TypeTextPlain, body)
	return d.client.DialAndSendWithContext(ctx, m)
}

func (d *driver) SendHTML(ctx context.Context, to []string, subject, htmlBody string, opts SendOptions) error {
	m, err := d.build(to, subject, opts.FromAddr, opts.CC, opts.BCC)
	if err != nil {
		return err
	}
	m.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return d.client.DialAndSendWithContext(ctx, m)
}

func (d *driver) Close() error {
	return nil
}
