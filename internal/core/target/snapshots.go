package target

// OratsSnapshots is the built-in orats.snapshots descriptor, in file column order
func OratsSnapshots() Descriptor {
	t := func(n string) Column { return Column{Name: n, Kind: Text} }
	i := func(n string) Column { return Column{Name: n, Kind: Integer} }
	d := func(n string) Column { return Column{Name: n, Kind: Decimal} }

	return Descriptor{
		Keyspace: "orats",
		Table:    "snapshots",
		Columns: []Column{
			t("ticker"), t("tradeDate"), t("expirDate"),
			i("dte"), d("strike"), d("stockPrice"),
			i("callVolume"), i("callOpenInterest"), i("callBidSize"), i("callAskSize"),
			i("putVolume"), i("putOpenInterest"), i("putBidSize"), i("putAskSize"),
			d("callBidPrice"), d("callValue"), d("callAskPrice"),
			d("putBidPrice"), d("putValue"), d("putAskPrice"),
			d("callBidIv"), d("callMidIv"), d("callAskIv"), d("smvVol"),
			d("putBidIv"), d("putMidIv"), d("putAskIv"),
			d("residualRate"),
			d("delta"), d("gamma"), d("theta"), d("vega"), d("rho"), d("phi"), d("driftlessTheta"),
			d("callSmvVol"), d("putSmvVol"), d("extSmvVol"),
			d("extCallValue"), d("extPutValue"), d("spotPrice"),
			t("quoteDate"), t("updatedAt"), t("snapShotEstTime"), t("snapShotDate"), t("expiryTod"),
		},
	}
}
