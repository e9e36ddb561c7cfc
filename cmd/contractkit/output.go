package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"contractkit/internal/abicodec"
	"contractkit/internal/models"
	"contractkit/internal/scenario"
)

var (
	pass = color.New(color.FgGreen, color.Bold).SprintFunc()
	fail = color.New(color.FgRed, color.Bold).SprintFunc()
)

func status(ok bool) string {
	if ok {
		return pass("PASS")
	}
	return fail("FAIL")
}

func printTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}

func printDeployment(name string, address common.Address, tx common.Hash, block uint64) {
	printTable([]string{"Contract", "Address", "Tx", "Block"}, [][]string{
		{name, address.Hex(), tx.Hex(), strconv.FormatUint(block, 10)},
	})
}

func printValues(fn string, values []abicodec.TypedValue) {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{strconv.Itoa(i), v.Tag.String(), v.String()}
	}
	fmt.Println(fn)
	printTable([]string{"#", "Type", "Value"}, rows)
}

func printReceipt(fn string, r *types.Receipt) {
	printTable([]string{"Function", "Tx", "Block", "Gas used", "Status"}, [][]string{{
		fn,
		r.TxHash.Hex(),
		r.BlockNumber.String(),
		strconv.FormatUint(r.GasUsed, 10),
		status(r.Status == types.ReceiptStatusSuccessful),
	}})
}

func printScenarioRuns(runs []*models.ScenarioRun) {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		if run == nil {
			continue
		}
		detail := run.Error
		if failed := run.Failed(); len(failed) > 0 && detail == "" {
			detail = fmt.Sprintf("%s: %s", failed[0].Description, failed[0].Detail)
		}
		rows = append(rows, []string{
			run.Scenario,
			status(run.Passed),
			fmt.Sprintf("%d/%d", len(run.Steps)-len(run.Failed()), len(run.Steps)),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			detail,
		})
	}
	printTable([]string{"Scenario", "Result", "Steps", "Duration", "Detail"}, rows)
}

func printCrossCalls(results []*scenario.CrossCallResult) {
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			r.Mode.String(),
			fmt.Sprintf("%s -> %s", r.CallerBefore, r.CallerAfter),
			fmt.Sprintf("%s -> %s", r.CalleeBefore, r.CalleeAfter),
			r.Expected.String(),
			r.Observed.String(),
			status(r.Passed()),
		}
	}
	printTable([]string{"Mode", "Caller x", "Callee x", "Expected", "Observed", "Result"}, rows)
}
