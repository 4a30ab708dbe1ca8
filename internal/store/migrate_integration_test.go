// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/accountd/accountd/internal/store"
)

var _ = Describe("PostgreSQL bootstrap", Ordered, func() {
	var (
		ctx     context.Context
		connStr string
	)

	BeforeAll(func() {
		ctx = accountsDB.ctx
		connStr = accountsDB.connStr
	})

	It("connects with retry", func() {
		pool, err := store.Connect(ctx, connStr, store.DefaultConnectOptions, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()
		Expect(pool.Ping(ctx)).To(Succeed())
	})

	It("gives up on an unreachable database", func() {
		_, err := store.Connect(ctx, "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
			store.ConnectOptions{MaxRetries: 1, BaseBackoff: 10 * time.Millisecond}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("migrates up, steps down and back up", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer m.Close()

		v, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(m.Up()).To(Succeed())
		latest, _, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(latest).To(BeNumerically(">=", 3))

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(m.Steps(-1)).To(Succeed())
		v, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(latest - 1))

		Expect(m.Up()).To(Succeed())
		Expect(m.Up()).To(Succeed(), "up to date is not an error")
	})
})
